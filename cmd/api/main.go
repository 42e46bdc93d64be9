package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"bulkmail/internal/awsutil"
	"bulkmail/internal/campaign"
	"bulkmail/internal/config"
	"bulkmail/internal/events"
	"bulkmail/internal/httpserver"
	"bulkmail/internal/logging"
	"bulkmail/internal/mailer"
	"bulkmail/internal/observability"
	"bulkmail/internal/providers/emailapi"
	"bulkmail/internal/providers/smtpmail"
	"bulkmail/internal/render"
	"bulkmail/internal/store/memory"
	"bulkmail/internal/store/pg"
)

const serviceName = "bulkmail"

type trackingBackend interface {
	campaign.TrackingStore
	httpserver.RecordFinder
}

func main() {
	cfg := config.LoadAPI()
	logger := logging.Init(serviceName, cfg.LogFormat, cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observability.Register(prometheus.DefaultRegisterer)

	var (
		store  trackingBackend
		source campaign.RecipientSource
		db     *pgxpool.Pool
	)
	switch cfg.StoreDriver {
	case "memory":
		store = memory.NewStore()
		src := &memory.Source{}
		if cfg.RecipientsFile != "" {
			loaded, err := memory.LoadRecipients(cfg.RecipientsFile)
			if err != nil {
				slog.Error("api load recipients failed", "err", err, "path", cfg.RecipientsFile)
				os.Exit(1)
			}
			src = loaded
		}
		source = src
	default:
		if cfg.RunMigrations {
			if err := pg.Migrate(cfg.DBDSN); err != nil {
				slog.Error("api migrations failed", "err", err)
				os.Exit(1)
			}
		}
		var err error
		db, err = pg.NewPool(ctx, cfg.DBDSN, pg.PoolOptions{
			MaxConns:          cfg.DBPoolMaxConns,
			MinConns:          cfg.DBPoolMinConns,
			MaxConnLifetime:   cfg.DBPoolMaxConnLifetime,
			MaxConnIdleTime:   cfg.DBPoolMaxConnIdleTime,
			HealthCheckPeriod: cfg.DBPoolHealthCheckPeriod,
		})
		if err != nil {
			slog.Error("api db connect failed", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		pgStore := pg.New(db)
		if cfg.RecipientsFile != "" {
			if err := seedRecipients(ctx, pgStore, cfg.RecipientsFile); err != nil {
				slog.Error("api seed recipients failed", "err", err, "path", cfg.RecipientsFile)
				os.Exit(1)
			}
		}
		store, source = pgStore, pgStore
	}

	renderer, err := render.LoadFile(cfg.TemplatesFile)
	if err != nil {
		slog.Error("api templates load failed", "err", err, "path", cfg.TemplatesFile)
		os.Exit(1)
	}

	var sender mailer.Sender
	switch cfg.MailerKind {
	case "smtp":
		sender = smtpmail.New(smtpmail.Settings{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPass,
			Timeout:  cfg.MailerTimeout,
		})
	default:
		sender = &emailapi.Client{
			BaseURL: cfg.EmailAPIURL,
			APIKey:  cfg.EmailAPIKey,
			HTTP:    &http.Client{Timeout: cfg.MailerTimeout},
		}
	}
	guard := &mailer.Guard{
		Next: sender,
		Breaker: mailer.NewBreaker(cfg.MailerKind, mailer.BreakerSettings{
			MaxRequests:         cfg.BreakerHalfOpenMax,
			OpenTimeout:         cfg.BreakerOpenTimeout,
			ConsecutiveFailures: cfg.BreakerFailures,
		}),
		Limiter: mailer.NewLimiter(cfg.MailerRPS, cfg.MailerBurst),
		Timeout: cfg.MailerTimeout,
	}

	orch := &campaign.Orchestrator{
		Source: source,
		Dispatcher: &campaign.Dispatcher{
			Store:        store,
			Renderer:     renderer,
			Mailer:       guard,
			From:         cfg.FromEmail,
			FromName:     cfg.FromName,
			MaxRetries:   cfg.MaxRetries,
			Backoff:      cfg.RetryBackoff,
			StoreTimeout: cfg.StoreTimeout,
			Logger:       logger,
		},
		Concurrency: cfg.DispatchConcurrency,
		Logger:      logger,
	}
	if cfg.EventsQueueURL != "" {
		sqsClient, err := awsutil.NewSQSClient(ctx, cfg.AWSRegion, cfg.LocalstackEndpoint)
		if err != nil {
			slog.Error("api sqs client init failed", "err", err)
			os.Exit(1)
		}
		orch.Events = &events.Publisher{SQS: sqsClient, QueueURL: cfg.EventsQueueURL}
	}

	s := httpserver.New()
	api := &httpserver.API{
		Campaigns:       orch,
		Records:         store,
		CampaignTimeout: cfg.CampaignTimeout,
	}
	api.Register(s.Mux)

	s.Mux.HandleFunc("/health", httpserver.Health(serviceName)).Methods(http.MethodGet)
	s.Mux.HandleFunc("/healthz", httpserver.Healthz())
	s.Mux.HandleFunc("/readyz", httpserver.Readyz(2*time.Second, func(ctx context.Context) error {
		if db == nil {
			return nil
		}
		return db.Ping(ctx)
	}))

	srv := &http.Server{Handler: s.Mux}
	metricsSrv := &http.Server{
		Addr:    ":" + cfg.MetricsPort,
		Handler: httpserver.MetricsHandler(),
	}

	go func() {
		slog.Info("api metrics listening", "port", cfg.MetricsPort)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("api metrics server failed", "err", err)
		}
	}()

	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		slog.Error("api listen failed", "err", err, "port", cfg.Port)
		os.Exit(1)
	}

	// a signal cancels running campaigns; Serve waits for their records to close out
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("api listening", "port", cfg.Port, "store", cfg.StoreDriver, "mailer", cfg.MailerKind)
	serveErr := httpserver.Serve(sigCtx, srv, ln, cfg.ShutdownGrace)
	if serveErr != nil {
		slog.Error("api server stopped with error", "err", serveErr)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
	slog.Info("api shutdown complete")
	if serveErr != nil && sigCtx.Err() == nil {
		os.Exit(1)
	}
}

func seedRecipients(ctx context.Context, s *pg.Store, path string) error {
	src, err := memory.LoadRecipients(path)
	if err != nil {
		return err
	}
	for _, r := range src.Recipients {
		if err := s.UpsertRecipient(ctx, r); err != nil {
			return err
		}
	}
	slog.Info("recipients seeded", "count", len(src.Recipients))
	return nil
}
