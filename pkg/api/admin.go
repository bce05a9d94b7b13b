package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/plaenen/iamcore/pkg/domain"
	"github.com/plaenen/iamcore/pkg/eventstore"
	"github.com/plaenen/iamcore/pkg/projection"
)

// catchUpTimeout bounds a synchronous catch-up request.
const catchUpTimeout = 30 * time.Second

// AdminServer serves health and projection operations.
type AdminServer struct {
	es       *eventstore.Eventstore
	registry *projection.Registry
	auth     *Authenticator
	logger   *slog.Logger
}

// NewAdminServer wires the admin surface.
func NewAdminServer(es *eventstore.Eventstore, registry *projection.Registry, auth *Authenticator, logger *slog.Logger) *AdminServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminServer{es: es, registry: registry, auth: auth, logger: logger}
}

// Router builds the chi handler. Health is public; the debug surface needs a
// token.
func (s *AdminServer) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealth)

	r.Route("/debug/projections", func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.Middleware)
		}
		r.Get("/", s.handleProjectionStatus)
		r.Post("/catch-up", s.handleCatchUp)
		r.Post("/{name}/trigger", s.handleTrigger)
		r.Post("/{name}/skip", s.handleSkip)
	})

	return r
}

func (s *AdminServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.es.Health(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *AdminServer) handleProjectionStatus(w http.ResponseWriter, r *http.Request) {
	statuses, err := s.registry.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

func (s *AdminServer) handleTrigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if err := s.registry.Trigger(name); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"triggered": name})
}

// skipRequest names the position to move past. Pos is required; inTxOrder
// defaults to 0.
type skipRequest struct {
	Pos       uint64 `json:"pos"`
	InTxOrder uint32 `json:"inTxOrder"`
}

func (s *AdminServer) handleSkip(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	var req skipRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.NewInvalidArgument(err, "API-skp01", "invalid skip request body"))
		return
	}
	if req.Pos == 0 {
		writeError(w, domain.NewInvalidArgument(nil, "API-skp02", "pos is required"))
		return
	}

	pos := domain.Position{Pos: req.Pos, InTxOrder: req.InTxOrder}
	if err := s.registry.Skip(r.Context(), name, pos); err != nil {
		writeError(w, err)
		return
	}
	s.logger.Warn("projection position skipped", "projection", name, "position", pos)
	writeJSON(w, http.StatusOK, map[string]any{"skipped": name, "position": pos})
}

func (s *AdminServer) handleCatchUp(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), catchUpTimeout)
	defer cancel()

	if err := s.registry.CatchUpAll(ctx); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "caught up"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
