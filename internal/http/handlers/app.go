package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"studio/internal/domain"
	"studio/internal/infra"
	"studio/internal/middleware"
	"studio/internal/providers/webhook"
	"studio/internal/studio"
)

const maxBodyBytes = 1 << 20

// Sessions hands out the studio session of a user's project.
type Sessions interface {
	Get(ctx context.Context, scope domain.Scope, plan string) (*studio.Session, error)
}

// Forwarder relays render payloads to the automation webhooks.
type Forwarder interface {
	Forward(ctx context.Context, mode domain.Mode, payload json.RawMessage) webhook.Reply
}

// App holds the dependencies of the HTTP handlers.
type App struct {
	Sessions Sessions
	Proxy    Forwarder
	Logger   infra.Logger
	// Media and Sources are optional; without Media the upload route reports 404.
	Media   MediaStore
	Sources SourceRecorder

	jobs sync.WaitGroup
}

// NewApp wires the handler dependencies. A nil logger discards output.
func NewApp(sessions Sessions, proxy Forwarder, logger *infra.Logger) *App {
	l := infra.Logger(zerolog.New(io.Discard))
	if logger != nil {
		l = *logger
	}
	return &App{Sessions: sessions, Proxy: proxy, Logger: l}
}

// Wait blocks until every background render started by the handlers has settled.
func (a *App) Wait() {
	a.jobs.Wait()
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error   string          `json:"error"`
	Message string          `json:"message"`
	Missing []domain.SlotID `json:"missing,omitempty"`
}

func (a *App) error(w http.ResponseWriter, code int, kind, msg string) {
	a.json(w, code, errorResponse{Error: kind, Message: msg})
}

// fail maps a domain error onto a status code.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *domain.ValidationError
	switch {
	case errors.As(err, &verr):
		a.json(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation", Message: verr.Error(), Missing: verr.Missing})
	case errors.Is(err, domain.ErrSlotCapReached):
		a.error(w, http.StatusUnprocessableEntity, "slot_cap", domain.SlotCapWarning)
	case errors.Is(err, domain.ErrBusy), errors.Is(err, domain.ErrInvalidTransition):
		a.error(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, domain.ErrModeLocked):
		a.error(w, http.StatusLocked, "mode_locked", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "project not found")
	case errors.Is(err, domain.ErrUnauthorized):
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing user context")
	case errors.Is(err, domain.ErrMissingContext):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	case errors.Is(err, domain.ErrUnknownSlot),
		errors.Is(err, domain.ErrKindMismatch),
		errors.Is(err, domain.ErrInvalidValue):
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
	default:
		a.Logger.Error().Err(err).
			Str("request_id", middleware.RequestIDFromContext(r.Context())).
			Str("path", r.URL.Path).
			Msg("studio request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func (a *App) currentUserID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return dec.Decode(dst)
}
