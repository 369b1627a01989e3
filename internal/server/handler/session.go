package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/tradesim/internal/domain"
	"github.com/alanyoungcy/tradesim/internal/session"
)

// SessionController is the part of session.Controller the API drives.
type SessionController interface {
	Start(params domain.SimulationParameters) error
	Stop(ctx context.Context) error
	UpdateParameters(params domain.SimulationParameters) error
	Parameters() domain.SimulationParameters
	LatestEvent() (domain.EstimateEvent, error)
	Status() session.Status
}

// StatusBroadcaster is told about lifecycle changes so live clients can
// refresh without polling.
type StatusBroadcaster interface {
	BroadcastStatus(ctx context.Context, status any) error
}

// SessionHandler serves the session, parameter and estimate endpoints.
type SessionHandler struct {
	ctrl   SessionController
	hub    StatusBroadcaster // optional
	logger *slog.Logger
}

// NewSessionHandler creates a SessionHandler. hub may be nil.
func NewSessionHandler(ctrl SessionController, hub StatusBroadcaster, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		ctrl:   ctrl,
		hub:    hub,
		logger: logger.With(slog.String("handler", "session")),
	}
}

// Status returns the controller status.
// GET /api/status
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Status())
}

// Estimate returns the latest result event, or 404 before the first one.
// GET /api/estimate
func (h *SessionHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	ev, err := h.ctrl.LatestEvent()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// GetParameters returns the parameters in effect.
// GET /api/parameters
func (h *SessionHandler) GetParameters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.ctrl.Parameters())
}

// UpdateParameters merges the body over the current parameters and applies
// the result from the next snapshot on.
// PUT /api/parameters
func (h *SessionHandler) UpdateParameters(w http.ResponseWriter, r *http.Request) {
	params := h.ctrl.Parameters()
	if err := decodeInto(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ctrl.UpdateParameters(params); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.ctrl.Parameters())
}

// Start opens a session. Body fields override the current parameters.
// POST /api/session/start
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	params := h.ctrl.Parameters()
	if err := decodeInto(r, &params); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.ctrl.Start(params); err != nil {
		writeDomainError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "session started via api")
	h.respondStatus(w, r, http.StatusAccepted)
}

// Stop ends the current session. Stopping twice is fine.
// POST /api/session/stop
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.ctrl.Stop(r.Context()); err != nil {
		writeDomainError(w, err)
		return
	}
	h.logger.InfoContext(r.Context(), "session stopped via api")
	h.respondStatus(w, r, http.StatusOK)
}

func (h *SessionHandler) respondStatus(w http.ResponseWriter, r *http.Request, code int) {
	st := h.ctrl.Status()
	if h.hub != nil {
		if err := h.hub.BroadcastStatus(r.Context(), st); err != nil {
			h.logger.WarnContext(r.Context(), "status broadcast failed", slog.String("error", err.Error()))
		}
	}
	writeJSON(w, code, st)
}
