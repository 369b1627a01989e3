package handler

import "net/http"

// ModelLister lists the registered pricing models.
type ModelLister interface {
	List() []string
}

// ModelHandler serves the model catalogue.
type ModelHandler struct {
	models ModelLister
	active string
}

// NewModelHandler creates a ModelHandler; active is the model the session
// prices with.
func NewModelHandler(models ModelLister, active string) *ModelHandler {
	return &ModelHandler{models: models, active: active}
}

// List returns every registered model and the active one.
// GET /api/models
func (h *ModelHandler) List(w http.ResponseWriter, r *http.Request) {
	names := h.models.List()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": names, "active": h.active})
}
