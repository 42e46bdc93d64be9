package pg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"bulkmail/internal/domain"
)

const uniqueViolation = "23505"

// Store is the Postgres-backed TrackingStore and RecipientSource.
type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

const recordColumns = `id, recipient_id, dedupe_key, status, scheduled_at, sent_at, failed_at,
	COALESCE(error_message,''), retry_count, COALESCE(receipt_id,''), metadata, created_at, updated_at`

func (s *Store) Create(ctx context.Context, rec domain.TrackingRecord) (domain.TrackingRecord, error) {
	meta, err := json.Marshal(orEmpty(rec.Metadata))
	if err != nil {
		return domain.TrackingRecord{}, fmt.Errorf("%w: encode metadata: %v", domain.ErrStore, err)
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO tracking_records (id, recipient_id, dedupe_key, status, scheduled_at, sent_at, failed_at,
			error_message, retry_count, receipt_id, metadata, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
	`, rec.ID, rec.RecipientID, rec.DedupeKey, string(rec.Status), rec.ScheduledAt, rec.SentAt, rec.FailedAt,
		nullIfEmpty(rec.ErrorMessage), rec.RetryCount, nullIfEmpty(rec.ReceiptID), meta, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			existing, _, _ := s.findByDedupeKey(ctx, rec.DedupeKey)
			return existing, fmt.Errorf("%w: %s", domain.ErrDuplicate, pgErr.ConstraintName)
		}
		return domain.TrackingRecord{}, fmt.Errorf("%w: insert tracking record: %w", domain.ErrStore, err)
	}
	return rec, nil
}

// Update applies patch only while the record is in a status the patch may
// follow, so concurrent writers cannot move a record backwards.
func (s *Store) Update(ctx context.Context, id string, patch domain.TrackingPatch) (domain.TrackingRecord, error) {
	var (
		status  *string
		allowed []string
	)
	if patch.Status != nil {
		st := string(*patch.Status)
		status = &st
		for _, p := range domain.Predecessors(*patch.Status) {
			allowed = append(allowed, string(p))
		}
	} else {
		allowed = []string{string(domain.StatusQueued), string(domain.StatusSending)}
	}
	now := patch.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	row := s.DB.QueryRow(ctx, `
		UPDATE tracking_records SET
			status        = COALESCE($2, status),
			sent_at       = COALESCE($3, sent_at),
			failed_at     = COALESCE($4, failed_at),
			error_message = COALESCE($5, error_message),
			retry_count   = COALESCE($6, retry_count),
			receipt_id    = COALESCE($7, receipt_id),
			updated_at    = $8
		WHERE id=$1 AND status = ANY($9::text[])
		RETURNING `+recordColumns,
		id, status, patch.SentAt, patch.FailedAt, patch.ErrorMessage, patch.RetryCount, patch.ReceiptID, now, allowed)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		cur, found, ferr := s.Find(ctx, id)
		switch {
		case ferr != nil:
			return domain.TrackingRecord{}, ferr
		case !found:
			return domain.TrackingRecord{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
		case patch.Status != nil:
			return domain.TrackingRecord{}, domain.CheckTransition(cur.Status, *patch.Status)
		default:
			return domain.TrackingRecord{}, fmt.Errorf("%w: record %s is %s", domain.ErrInvalidTransition, id, cur.Status)
		}
	}
	if err != nil {
		return domain.TrackingRecord{}, fmt.Errorf("%w: update tracking record: %w", domain.ErrStore, err)
	}
	return rec, nil
}

func (s *Store) Find(ctx context.Context, id string) (domain.TrackingRecord, bool, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+recordColumns+` FROM tracking_records WHERE id=$1`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TrackingRecord{}, false, nil
	}
	if err != nil {
		return domain.TrackingRecord{}, false, fmt.Errorf("%w: find tracking record: %w", domain.ErrStore, err)
	}
	return rec, true, nil
}

func (s *Store) findByDedupeKey(ctx context.Context, key string) (domain.TrackingRecord, bool, error) {
	row := s.DB.QueryRow(ctx, `SELECT `+recordColumns+` FROM tracking_records WHERE dedupe_key=$1`, key)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TrackingRecord{}, false, nil
	}
	if err != nil {
		return domain.TrackingRecord{}, false, fmt.Errorf("%w: find tracking record by key: %w", domain.ErrStore, err)
	}
	return rec, true, nil
}

// ListEligible returns eligible recipients in insertion order.
func (s *Store) ListEligible(ctx context.Context) ([]domain.Recipient, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, email, display_name, fields FROM recipients
		WHERE eligible ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var out []domain.Recipient
	for rows.Next() {
		var (
			r      domain.Recipient
			fields []byte
		)
		if err := rows.Scan(&r.ID, &r.Email, &r.DisplayName, &fields); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
		}
		if r.Fields, err = decodeStringMap(fields); err != nil {
			return nil, fmt.Errorf("%w: recipient %s fields: %v", domain.ErrSourceUnavailable, r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSourceUnavailable, err)
	}
	return out, nil
}

// UpsertRecipient is used to seed recipients from a file.
func (s *Store) UpsertRecipient(ctx context.Context, r domain.Recipient) error {
	fields, err := json.Marshal(orEmpty(r.Fields))
	if err != nil {
		return err
	}
	_, err = s.DB.Exec(ctx, `
		INSERT INTO recipients (id, email, display_name, fields)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (id) DO UPDATE SET email=EXCLUDED.email, display_name=EXCLUDED.display_name, fields=EXCLUDED.fields
	`, r.ID, r.Email, r.DisplayName, fields)
	return err
}

func scanRecord(row pgx.Row) (domain.TrackingRecord, error) {
	var (
		rec    domain.TrackingRecord
		status string
		meta   []byte
	)
	err := row.Scan(&rec.ID, &rec.RecipientID, &rec.DedupeKey, &status, &rec.ScheduledAt, &rec.SentAt, &rec.FailedAt,
		&rec.ErrorMessage, &rec.RetryCount, &rec.ReceiptID, &meta, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return domain.TrackingRecord{}, err
	}
	rec.Status = domain.Status(status)
	if rec.Metadata, err = decodeStringMap(meta); err != nil {
		return domain.TrackingRecord{}, fmt.Errorf("%w: record %s metadata: %v", domain.ErrStore, rec.ID, err)
	}
	return rec, nil
}

// decodeStringMap reads a JSONB object whose values must all be strings.
func decodeStringMap(b []byte) (map[string]string, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func orEmpty(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
