package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"

	"bulkmail/internal/config"
	"bulkmail/internal/httpserver"
	"bulkmail/internal/logging"
	"bulkmail/internal/providers/emailapi"
)

type server struct {
	cfg     config.MockProviderConfig
	fail    map[string]bool
	reject  map[string]bool
	idx     uint64
	rng     *rand.Rand
	rngMu   sync.Mutex
	sleepFn func(time.Duration)
}

func main() {
	cfg := config.LoadMockProvider()
	logging.Init("mock-provider", cfg.LogFormat, cfg.LogLevel)

	s := newServer(cfg, rand.New(rand.NewSource(time.Now().UnixNano())))

	slog.Info("mock provider listening", "port", cfg.Port, "failure_rate", cfg.FailureRate, "delay", cfg.Delay)
	if err := http.ListenAndServe(":"+cfg.Port, httpserver.Logging(s.routes())); err != nil {
		slog.Error("mock provider server failed", "err", err)
		os.Exit(1)
	}
}

func newServer(cfg config.MockProviderConfig, rng *rand.Rand) *server {
	return &server{
		cfg:     cfg,
		fail:    addressSet(cfg.FailAddresses),
		reject:  addressSet(cfg.RejectAddresses),
		rng:     rng,
		sleepFn: time.Sleep,
	}
}

func (s *server) routes() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/", s.handleSend).Methods(http.MethodPost)
	router.HandleFunc("/health", httpserver.Health("email-api")).Methods(http.MethodGet)
	return router
}

func (s *server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req emailapi.SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, emailapi.SendResponse{Error: "Invalid JSON"})
		return
	}
	if req.To == "" || req.Subject == "" || req.HTML == "" {
		writeJSON(w, http.StatusBadRequest, emailapi.SendResponse{Error: "Missing required fields: to, subject, html"})
		return
	}

	if s.cfg.Delay > 0 {
		s.sleepFn(s.cfg.Delay)
	}

	to := strings.ToLower(strings.TrimSpace(req.To))
	switch {
	case s.reject[to]:
		writeJSON(w, http.StatusBadRequest, emailapi.SendResponse{Error: "Failed to send email", Details: "mailbox unavailable"})
		return
	case s.fail[to] || s.roll():
		writeJSON(w, http.StatusInternalServerError, emailapi.SendResponse{Error: "Failed to send email", Details: "upstream relay error"})
		return
	}

	id := atomic.AddUint64(&s.idx, 1)
	writeJSON(w, http.StatusOK, struct {
		emailapi.SendResponse
		Recipients []string `json:"recipients"`
	}{
		SendResponse: emailapi.SendResponse{Success: true, Message: "Email sent successfully", MessageID: fmtID(id)},
		Recipients:   []string{req.To},
	})
}

func (s *server) roll() bool {
	if s.cfg.FailureRate <= 0 {
		return false
	}
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return s.rng.Float64() < s.cfg.FailureRate
}

func addressSet(in []string) map[string]bool {
	out := make(map[string]bool, len(in))
	for _, a := range in {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			out[a] = true
		}
	}
	return out
}

func fmtID(i uint64) string {
	return fmt.Sprintf("mock_%08d", i)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
