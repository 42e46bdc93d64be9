package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"bulkmail/internal/domain"
)

type CampaignRunner interface {
	Run(ctx context.Context, req domain.CampaignRequest) (domain.CampaignSummary, error)
}

type RecordFinder interface {
	Find(ctx context.Context, id string) (domain.TrackingRecord, bool, error)
}

type API struct {
	Campaigns CampaignRunner
	Records   RecordFinder
	// CampaignTimeout bounds one campaign run; zero means the request context only.
	CampaignTimeout time.Duration
}

type sendBulkResponse struct {
	Status  string                 `json:"status"`
	Summary domain.CampaignSummary `json:"summary"`
}

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func (a *API) Register(mux *mux.Router) {
	mux.HandleFunc("/send-bulk-countdown", a.handleSendBulkCountdown).Methods(http.MethodPost)
	mux.HandleFunc("/v1/tracking-records/{id}", a.handleGetTrackingRecord).Methods(http.MethodGet)
}

func (a *API) handleSendBulkCountdown(w http.ResponseWriter, r *http.Request) {
	var req domain.CampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrInvalidJSON})
		return
	}

	ctx := r.Context()
	if a.CampaignTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.CampaignTimeout)
		defer cancel()
	}

	summary, err := a.Campaigns.Run(ctx, req)
	if err != nil {
		var verr *domain.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), Field: verr.Field})
		case errors.Is(err, domain.ErrSourceUnavailable):
			slog.Error("send bulk countdown failed", "err", err, "countdown_day", req.CountdownDay, "launch_date", req.LaunchDate)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: ErrSourceUnavailable})
		default:
			slog.Error("send bulk countdown failed", "err", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: ErrInternal})
		}
		return
	}
	writeJSON(w, http.StatusOK, sendBulkResponse{Status: "ok", Summary: summary})
}

func (a *API) handleGetTrackingRecord(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if id == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ErrMissingID})
		return
	}
	rec, found, err := a.Records.Find(r.Context(), id)
	if err != nil {
		slog.Error("get tracking record failed", "err", err, "id", id)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: ErrDependency})
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: ErrNotFound})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
