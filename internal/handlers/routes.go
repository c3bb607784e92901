package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"route-optimizer/internal/database"
	"route-optimizer/internal/events"
	"route-optimizer/internal/models"
	"route-optimizer/internal/routing"
)

// recordTimeout bounds the history, event and archive writes after a route is computed
const recordTimeout = 10 * time.Second

// LocationInput is a stop as supplied by API clients
type LocationInput struct {
	ID   string   `json:"id" validate:"omitempty,max=128"`
	Name string   `json:"name" validate:"max=256"`
	Lat  *float64 `json:"lat" validate:"required,latitude"`
	Lng  *float64 `json:"lng" validate:"required,longitude"`
}

func (in LocationInput) toLocation() models.Location {
	return models.Location{ID: in.ID, Name: in.Name, Lat: *in.Lat, Lng: *in.Lng}
}

// OptimizeRouteRequest is the body of POST /api/v1/routes/optimize
type OptimizeRouteRequest struct {
	SessionID    string          `json:"session_id" validate:"omitempty,max=128"`
	Start        *LocationInput  `json:"start" validate:"required"`
	Destinations []LocationInput `json:"destinations" validate:"max=500,dive"`
	Objective    string          `json:"objective" validate:"omitempty,oneof=distance time"`
	Seed         uint64          `json:"seed"`
}

// OptimizeRouteResponse is the optimized route plus the id it was recorded under
type OptimizeRouteResponse struct {
	RouteID   string `json:"route_id"`
	SessionID string `json:"session_id,omitempty"`
	*models.OptimizedRoute
}

// RouteHistoryResponse lists recorded routes, newest first
type RouteHistoryResponse struct {
	Routes []models.RouteRecord `json:"routes"`
	Total  int                  `json:"total"`
}

// RouteHistoryDetail is a recorded route with its full payload
type RouteHistoryDetail struct {
	Record models.RouteRecord `json:"record"`
	Route  json.RawMessage    `json:"route,omitempty"`
}

// HandleOptimizeRoute handles POST /api/v1/routes/optimize
func (h *Handler) HandleOptimizeRoute(w http.ResponseWriter, r *http.Request) {
	var req OptimizeRouteRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	routeReq := &routing.Request{
		Start:        req.Start.toLocation(),
		Destinations: make([]models.Location, len(req.Destinations)),
		Objective:    models.Objective(req.Objective),
		Seed:         req.Seed,
	}
	for i, d := range req.Destinations {
		routeReq.Destinations[i] = d.toLocation()
	}

	log.Printf("[HTTP] POST /api/v1/routes/optimize: session=%s destinations=%d objective=%s",
		req.SessionID, len(req.Destinations), req.Objective)

	route, err := h.Sessions.Optimize(r.Context(), req.SessionID, routeReq)
	if err != nil {
		h.handleRoutingError(w, err)
		return
	}

	routeID := h.recordRoute(r.Context(), req.SessionID, route)

	log.Printf("[HTTP] POST /api/v1/routes/optimize: route=%s stops=%d distance_km=%.2f time_h=%.2f solver=%s",
		routeID, len(route.Locations), route.TotalDistanceKm, route.TotalTimeHours, route.Solver)

	h.writeJSON(w, http.StatusOK, OptimizeRouteResponse{
		RouteID:        routeID,
		SessionID:      req.SessionID,
		OptimizedRoute: route,
	})
}

// recordRoute persists, publishes and archives a computed route. Failures are
// logged and never fail the request that produced the route.
func (h *Handler) recordRoute(ctx context.Context, sessionID string, route *models.OptimizedRoute) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	routeID := uuid.NewString()
	createdAt := route.ComputedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	payload, err := json.Marshal(route)
	if err != nil {
		log.Printf("[ERROR] Failed to encode route: route=%s err=%v", routeID, err)
		return routeID
	}

	if h.Store != nil {
		rec := &models.RouteRecord{
			ID:              routeID,
			SessionID:       sessionID,
			Objective:       route.Objective,
			Solver:          route.Solver,
			MatrixSource:    route.MatrixSource,
			StopCount:       len(route.Locations),
			TotalDistanceKm: route.TotalDistanceKm,
			TotalTimeHours:  route.TotalTimeHours,
			Payload:         payload,
			CreatedAt:       createdAt,
		}
		if err := h.Store.RouteHistory().Save(ctx, rec); err != nil {
			log.Printf("[ERROR] Failed to save route history: route=%s err=%v", routeID, err)
		}
	}

	if err := h.Publisher.PublishRouteOptimized(ctx, events.NewRouteOptimized(routeID, sessionID, route)); err != nil {
		log.Printf("[WARN] Failed to publish route event: route=%s err=%v", routeID, err)
	}

	if key, err := h.Archiver.Archive(ctx, routeID, createdAt, payload); err != nil {
		log.Printf("[WARN] Failed to archive route: route=%s err=%v", routeID, err)
	} else if key != "" {
		log.Printf("[ARCHIVE] Stored route: route=%s key=%s", routeID, key)
	}

	return routeID
}

// HandleGetSession handles GET /api/v1/routes/sessions/{id}
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	route, ok := h.Sessions.Latest(id)
	if !ok {
		h.handleNotFound(w, "No route has been computed for this session")
		return
	}
	h.writeJSON(w, http.StatusOK, route)
}

// HandleClearSession handles DELETE /api/v1/routes/sessions/{id}
func (h *Handler) HandleClearSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	log.Printf("[HTTP] DELETE /api/v1/routes/sessions/%s", id)

	if !h.Sessions.Clear(id) {
		h.handleNotFound(w, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListHistory handles GET /api/v1/routes/history
func (h *Handler) HandleListHistory(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		h.writeJSON(w, http.StatusOK, RouteHistoryResponse{Routes: []models.RouteRecord{}})
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			h.handleValidationError(w, "limit must be an integer", nil)
			return
		}
		limit = n
	}

	records, err := h.Store.RouteHistory().List(r.Context(), database.NormalizeLimit(limit))
	if err != nil {
		h.handleInternalError(w, err)
		return
	}
	if records == nil {
		records = []models.RouteRecord{}
	}

	h.writeJSON(w, http.StatusOK, RouteHistoryResponse{Routes: records, Total: len(records)})
}

// HandleGetHistory handles GET /api/v1/routes/history/{id}
func (h *Handler) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		h.handleNotFound(w, "Route history is disabled")
		return
	}

	rec, err := h.Store.RouteHistory().GetByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if h.checkNotFound(err) {
			h.handleNotFound(w, "Route not found")
			return
		}
		h.handleInternalError(w, err)
		return
	}

	detail := RouteHistoryDetail{Record: *rec}
	if json.Valid(rec.Payload) {
		detail.Route = rec.Payload
	}
	h.writeJSON(w, http.StatusOK, detail)
}
