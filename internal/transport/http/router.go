// SPDX-License-Identifier: Apache-2.0

package httptransport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/proposalai/followups/internal/auth"
	"github.com/proposalai/followups/internal/domain"
	"github.com/proposalai/followups/internal/metrics"
	"github.com/proposalai/followups/internal/transport/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var errEmptyBody = errors.New("request body is required")

type createAPIKeyRequest struct {
	Name              string    `json:"name"`
	OrganizationID    uuid.UUID `json:"organization_id"`
	MaxRequestsPerMin int       `json:"max_requests_per_min"`
}

type errorResponse struct {
	Error    string   `json:"error"`
	Problems []string `json:"problems,omitempty"`
}

type Deps struct {
	Sequences      SequenceService
	Executions     ExecutionService
	Passes         PassRunner
	APIKeyAdmin    APIKeyManager
	APIKeyResolver APIKeyResolver
	Health         HealthChecker
	Logger         *slog.Logger
	AdminToken     string
	Version        string
	Commit         string
	BuildDate      string
}

func NewRouter(deps Deps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics.Init()
	version := valueOrDefault(deps.Version, "dev")
	commit := valueOrDefault(deps.Commit, "none")
	buildDate := valueOrDefault(deps.BuildDate, "unknown")

	r := chi.NewRouter()
	r.Use(requestIDMiddleware())
	r.Use(requestLoggingMiddleware(logger))
	r.Use(tracingMiddleware())

	// ---------------- HEALTH ----------------

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if deps.Health != nil {
			if err := deps.Health.Check(r.Context()); err != nil {
				logger.Warn("health check failed", "error", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// ---------------- METRICS ----------------

	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// ---------------- VERSION ----------------

	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"commit":     commit,
			"build_date": buildDate,
		})
	})

	// ---------------- API KEY LIFECYCLE (ADMIN) ----------------

	if deps.APIKeyAdmin != nil {
		r.Route("/api-keys", func(admin chi.Router) {
			admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))

			admin.Post("/", func(w http.ResponseWriter, r *http.Request) {
				var req createAPIKeyRequest
				if err := decodeJSON(r, &req); err != nil {
					writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
					return
				}
				if req.OrganizationID == uuid.Nil {
					writeJSON(w, http.StatusBadRequest, errorResponse{Error: "organization_id is required"})
					return
				}

				created, err := deps.APIKeyAdmin.CreateAPIKey(r.Context(), domain.CreateAPIKeyParams{
					Name:              strings.TrimSpace(req.Name),
					OrganizationID:    req.OrganizationID,
					MaxRequestsPerMin: req.MaxRequestsPerMin,
				})
				if err != nil {
					writeError(w, logger, err, "create api key", "organization_id", req.OrganizationID)
					return
				}

				logger.Info("api key created", "api_key_id", created.ID, "organization_id", created.OrganizationID)
				writeJSON(w, http.StatusCreated, map[string]string{
					"api_key_id":      created.ID.String(),
					"organization_id": created.OrganizationID.String(),
					"token":           created.Token,
				})
			})

			admin.Get("/", func(w http.ResponseWriter, r *http.Request) {
				keys, err := deps.APIKeyAdmin.ListAPIKeys(r.Context())
				if err != nil {
					writeError(w, logger, err, "list api keys")
					return
				}
				if keys == nil {
					keys = []domain.APIKeyRecord{}
				}
				writeJSON(w, http.StatusOK, map[string]any{
					"api_keys": keys,
				})
			})

			admin.Delete("/{id}", func(w http.ResponseWriter, r *http.Request) {
				id, ok := pathID(w, r, "api key")
				if !ok {
					return
				}

				if err := deps.APIKeyAdmin.RevokeAPIKey(r.Context(), id); err != nil {
					writeError(w, logger, err, "revoke api key", "api_key_id", id)
					return
				}

				logger.Info("api key revoked", "api_key_id", id)
				w.WriteHeader(http.StatusNoContent)
			})
		})
	}

	// ---------------- SCHEDULER PASSES (ADMIN) ----------------

	if deps.Passes != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(middleware.AdminTokenAuth(deps.AdminToken, logger))
			admin.Post("/process-due", processDueHandler(deps.Passes, logger))
			admin.Post("/escalations", escalationsHandler(deps.Passes, logger))
		})
	}

	// ---------------- ORGANIZATION API (API KEY AUTH) ----------------

	r.Group(func(r chi.Router) {
		if deps.APIKeyResolver != nil {
			r.Use(middleware.APITokenAuth(deps.APIKeyResolver, logger))
		}

		if deps.Sequences != nil {
			h := sequenceHandlers{svc: deps.Sequences, logger: logger}
			r.Route("/sequences", func(r chi.Router) {
				r.Post("/", h.create)
				r.Get("/", h.list)
				r.Get("/{id}", h.get)
				r.Put("/{id}", h.update)
				r.Post("/{id}/default", h.setDefault)
				r.Post("/{id}/activate", h.setActive(true))
				r.Post("/{id}/deactivate", h.setActive(false))
			})
		}

		if deps.Executions != nil {
			h := executionHandlers{svc: deps.Executions, logger: logger}
			r.Post("/followups/trigger", h.trigger)
			r.Route("/executions", func(r chi.Router) {
				r.Get("/", h.listActive)
				r.Get("/{id}", h.get)
				r.Post("/{id}/pause", h.pause)
				r.Post("/{id}/resume", h.resume)
				r.Post("/{id}/stop", h.stop)
			})
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrInvalidAPIKeyName):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAlreadyActive),
		errors.Is(err, domain.ErrNoSequenceFound),
		errors.Is(err, domain.ErrExecutionBusy),
		errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTriggerConditionsNotMet):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err with its mapped status. Server errors are logged
// and their detail is not returned to the caller.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error, op string, attrs ...any) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", append(attrs, "error", err)...)
		writeJSON(w, status, errorResponse{Error: "failed to " + op})
		return
	}

	body := errorResponse{Error: err.Error()}
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		body.Error = domain.ErrValidation.Error()
		body.Problems = verr.Problems
	}
	logger.Debug(op+" rejected", append(attrs, "status", status, "error", err)...)
	writeJSON(w, status, body)
}

// decodeJSON reads exactly one JSON object into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	if r == nil || r.Body == nil || r.Body == http.NoBody {
		return errEmptyBody
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("request body must contain exactly one JSON object")
	}
	return nil
}

// organizationID returns the organization of the authenticated API key.
func organizationID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orgID, ok := auth.OrganizationIDFromContext(r.Context())
	if !ok {
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing organization"})
		return uuid.Nil, false
	}
	return orgID, true
}

func pathID(w http.ResponseWriter, r *http.Request, noun string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid " + noun + " ID"})
		return uuid.Nil, false
	}
	return id, true
}

func valueOrDefault(value, defaultValue string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return defaultValue
	}
	return trimmed
}
