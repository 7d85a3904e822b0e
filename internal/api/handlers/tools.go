package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"wayfarer/internal/core"
	"wayfarer/internal/types"
)

// TripPlan is the response body for the trip planner tool.
type TripPlan struct {
	Destination string   `json:"destination"`
	Days        int      `json:"days"`
	Highlights  []string `json:"highlights"`
}

// ToolsHandler exposes the premium tourist tools. All routes are gated by
// tier middleware supplied at construction time.
type ToolsHandler struct {
	gate   func(http.Handler) http.Handler
	logger *slog.Logger
}

// NewToolsHandler creates a ToolsHandler. gate is the tier-gating middleware
// (core.Server.RequireTiers) applied to every tool route.
func NewToolsHandler(gate func(http.Handler) http.Handler, l *slog.Logger) *ToolsHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ToolsHandler{
		gate:   gate,
		logger: l,
	}
}

// RegisterRoutes mounts the tool endpoints behind the tier gate.
func (h *ToolsHandler) RegisterRoutes(r chi.Router) {
	r.With(h.gate).Get("/tools/trip-planner", h.HandleTripPlanner)
}

// HandleTripPlanner handles GET /v1/tools/trip-planner. Reaching this
// handler means the tier gate has already admitted the account.
func (h *ToolsHandler) HandleTripPlanner(w http.ResponseWriter, r *http.Request) {
	destination := r.URL.Query().Get("destination")
	if destination == "" {
		destination = "Lisbon"
	}

	if actor, ok := types.GetActor(r.Context()); ok {
		h.logger.InfoContext(r.Context(), "trip plan generated",
			"account_id", actor.AccountID,
			"destination", destination,
		)
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: TripPlan{
		Destination: destination,
		Days:        3,
		Highlights: []string{
			"old town walking route",
			"local market food tour",
			"sunset viewpoint",
		},
	}})
}
