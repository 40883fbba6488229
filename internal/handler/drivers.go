package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/freshlane/realtime-go/internal/httputil"
	"github.com/freshlane/realtime-go/internal/location"
)

// DriversHandler serves the dispatch console's live driver roster.
type DriversHandler struct {
	roster *location.Roster
}

func NewDriversHandler(roster *location.Roster) *DriversHandler {
	return &DriversHandler{roster: roster}
}

func (h *DriversHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)

	return r
}

// GET /drivers
func (h *DriversHandler) List(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"drivers": h.roster.Snapshot(),
	})
}
