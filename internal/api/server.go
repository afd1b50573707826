package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/benaskins/joule/internal/energy"
	"github.com/benaskins/joule/internal/history"
	"github.com/benaskins/joule/internal/journal"
	"github.com/benaskins/joule/internal/metrics"
)

const maxBodyBytes = 1 << 20

// SampleSource provides the latest published sample.
type SampleSource interface {
	Latest() energy.Sample
	Status(now time.Time) string
}

// Debiter performs an atomic compare-and-subtract on the ledger.
type Debiter interface {
	Take(joules float64) (energy.TakeResult, error)
}

// SampleResponse is the body of GET /v1/sample.
type SampleResponse struct {
	energy.Sample
	Hash string `json:"hash"`
}

// TakeRequest is the body of POST /v1/take.
type TakeRequest struct {
	Joules float64 `json:"joules"`
}

// Server serves the joule control API over TCP.
type Server struct {
	samples  SampleSource
	ledger   Debiter
	history  *history.Ring
	journal  *journal.Journal
	metrics  *metrics.Recorder
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
}

// Option configures the server.
type Option func(*Server)

// WithHistory serves GET /v1/samples from ring.
func WithHistory(ring *history.Ring) Option {
	return func(s *Server) {
		s.history = ring
	}
}

// WithJournal records every debit outcome to j.
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) {
		s.journal = j
	}
}

// WithMetrics serves GET /metrics and counts debits.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates an API server backed by the given sampler and ledger.
func NewServer(samples SampleSource, ledger Debiter, opts ...Option) *Server {
	s := &Server{
		samples: samples,
		ledger:  ledger,
		logger:  slog.With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sample", s.sample)
	mux.HandleFunc("POST /v1/take", s.take)
	mux.HandleFunc("GET /v1/health", s.health)
	if s.history != nil {
		mux.HandleFunc("GET /v1/samples", s.listSamples)
	}
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	s.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the API's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// ListenTCP starts the server on a TCP address.
func (s *Server) ListenTCP(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called.
func (s *Server) Serve(ln net.Listener) error {
	s.listener = ln
	s.logger.Info("API listening", "addr", ln.Addr().String())
	err := s.server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) sample(w http.ResponseWriter, r *http.Request) {
	latest := s.samples.Latest()
	writeJSON(w, http.StatusOK, SampleResponse{Sample: latest, Hash: latest.Hash()})
}

func (s *Server) take(w http.ResponseWriter, r *http.Request) {
	var req TakeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	res, err := s.ledger.Take(req.Joules)
	if s.metrics != nil {
		s.metrics.ObserveDebit(req.Joules, res, err)
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	if s.journal != nil {
		if err := s.journal.Record(r.RemoteAddr, req.Joules, res); err != nil {
			s.logger.Error("journal write failed", "error", err)
		}
	}

	s.logger.Debug("debit", "joules", req.Joules, "ok", res.OK, "remaining_j", res.RemainingJ)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) listSamples(w http.ResponseWriter, r *http.Request) {
	samples := s.history.Samples()
	if v := r.URL.Query().Get("n"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("invalid n %q", v)})
			return
		}
		samples = s.history.Last(n)
	}
	writeJSON(w, http.StatusOK, samples)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	status := s.samples.Status(time.Now())
	code := http.StatusOK
	if status != energy.StatusOK {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]string{"status": status})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("encode response failed", "component", "api", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"encode response failed"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
