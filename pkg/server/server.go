// Package server exposes the bot over HTTP: the activity endpoint the
// channel service posts to, plus health and metrics surfaces.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"botframe/pkg/activity"
	"botframe/pkg/adapter"
	"botframe/pkg/auth"
	"botframe/pkg/config"
	"botframe/pkg/metrics"
	"botframe/pkg/turn"
)

const (
	defaultHost = "0.0.0.0"
	defaultPort = 3978
)

// Server hosts the bot's inbound HTTP surface.
type Server struct {
	cfg     config.ServerConfig
	adapter *adapter.CloudAdapter
	handler turn.Handler
	metrics *metrics.Metrics
	log     *slog.Logger
}

// New builds a server around an adapter and the bot's turn handler.
func New(cfg config.ServerConfig, cloudAdapter *adapter.CloudAdapter, handler turn.Handler, m *metrics.Metrics, log *slog.Logger) (*Server, error) {
	if cloudAdapter == nil {
		return nil, errors.New("adapter is required")
	}
	if handler == nil {
		return nil, errors.New("turn handler is required")
	}
	if m == nil {
		m = metrics.New()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Server{
		cfg:     cfg,
		adapter: cloudAdapter,
		handler: handler,
		metrics: m,
		log:     log.With("component", "server"),
	}, nil
}

// Router builds the chi mux serving the bot endpoint.
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(s.recordRequest)

	r.Post("/api/messages", s.handleMessages)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleHealth)
	r.Handle("/metrics", s.metrics.Handler())

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		host = defaultHost
	}

	port := s.cfg.Port
	if port <= 0 {
		port = defaultPort
	}

	server := &http.Server{
		Addr:              host + ":" + strconv.Itoa(port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.log.Info("Bot endpoint started", "address", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start bot endpoint: %w", err)
	}

	return nil
}

// handleMessages translates one inbound HTTP request into a turn: decode
// the activity, authenticate and process it, then write back whatever the
// turn produced (invoke response body, or an empty acknowledgement).
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	var act activity.Activity
	if err := json.NewDecoder(r.Body).Decode(&act); err != nil {
		http.Error(w, "malformed activity payload", http.StatusBadRequest)
		return
	}

	start := time.Now()
	invokeResponse, err := s.adapter.ProcessActivity(r.Context(), r.Header.Get("Authorization"), &act, s.handler)
	if err != nil {
		s.writeTurnError(w, &act, err, time.Since(start))
		return
	}

	s.metrics.RecordTurn(act.ChannelID, act.Type, "ok", time.Since(start).Seconds())

	if invokeResponse != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(invokeResponse.Status)
		if invokeResponse.Body != nil {
			if err := json.NewEncoder(w).Encode(invokeResponse.Body); err != nil {
				s.log.Error("Failed to write invoke response", "error", err)
			}
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) writeTurnError(w http.ResponseWriter, act *activity.Activity, err error, elapsed time.Duration) {
	if auth.IsAuthenticationError(err) {
		category := auth.CategoryFromError(err)
		s.metrics.RecordAuthFailure(category)
		s.metrics.RecordTurn(act.ChannelID, act.Type, "unauthorized", elapsed.Seconds())
		s.log.Warn("Rejected inbound activity", "category", category, "error", err)

		status := http.StatusUnauthorized
		if category == auth.ErrorBadRequest {
			status = http.StatusBadRequest
		}
		http.Error(w, category, status)
		return
	}

	s.metrics.RecordTurn(act.ChannelID, act.Type, "error", elapsed.Seconds())
	s.log.Error("Turn processing failed", "error", err)
	http.Error(w, "turn processing failed", http.StatusInternalServerError)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// recordRequest tracks per-route HTTP metrics.
func (s *Server) recordRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(ww.Status()), time.Since(start).Seconds())
	})
}
