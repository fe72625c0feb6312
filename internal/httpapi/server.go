// Package httpapi exposes the sync, alert, query, and KPI pipelines over a
// thin REST surface.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/vaultwatch/vaultwatch/internal/alert"
	"github.com/vaultwatch/vaultwatch/internal/inventory"
	"github.com/vaultwatch/vaultwatch/internal/logging"
	"github.com/vaultwatch/vaultwatch/internal/syncer"
	"github.com/vaultwatch/vaultwatch/internal/vault"
)

// Server wires the pipeline services to the REST surface.
type Server struct {
	store     inventory.Store
	syncer    *syncer.Syncer
	evaluator *alert.Evaluator
	vaults    vault.Client
	logger    *logging.Logger

	httpServer *http.Server
}

// NewServer creates the API server.
func NewServer(store inventory.Store, sync *syncer.Syncer, eval *alert.Evaluator, vaults vault.Client, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.New(false, true)
	}
	return &Server{
		store:     store,
		syncer:    sync,
		evaluator: eval,
		vaults:    vaults,
		logger:    logger.WithComponent("api"),
	}
}

// Router builds the chi router with all routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/keyvault", func(r chi.Router) {
		r.Post("/sync", s.handleSync)
		r.Get("/objects", s.handleQueryObjects)
		r.Get("/kpi", s.handleKPISummary)
		r.Get("/subscriptions", s.handleListSubscriptions)
	})

	r.Route("/api/alerts", func(r chi.Router) {
		r.Post("/send", s.handleSendAlerts)
		r.Get("/history", s.handleAlertHistory)
	})

	return r
}

// Start runs the HTTP server until the context is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // sync runs complete within the request
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	s.logger.Info("HTTP API listening on %s", addr)

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError surfaces failures the way the boundary always has: a generic
// detail message, no structured error-code taxonomy.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}
