package handlers

import (
	"errors"
	"log"
	"net/http"

	"route-optimizer/internal/models"
	"route-optimizer/internal/pathfinding"
)

// Search algorithms accepted by the shortest path endpoint
const (
	AlgorithmDijkstra = "dijkstra"
	AlgorithmAStar    = "astar"
)

// ShortestPathRequest is the body of POST /api/v1/paths/shortest
type ShortestPathRequest struct {
	From      string `json:"from" validate:"required"`
	To        string `json:"to" validate:"required"`
	Algorithm string `json:"algorithm" validate:"omitempty,oneof=dijkstra astar"`
	Objective string `json:"objective" validate:"omitempty,oneof=distance time"`
}

// ShortestPathResponse describes a path through the road network. Found is
// false and Path empty when the endpoints are not connected.
type ShortestPathResponse struct {
	Found      bool              `json:"found"`
	Algorithm  string            `json:"algorithm"`
	Objective  models.Objective  `json:"objective"`
	Path       []models.Location `json:"path"`
	Cost       float64           `json:"cost"`
	DistanceKm float64           `json:"distance_km"`
	TimeHours  float64           `json:"time_h"`
}

// HandleShortestPath handles POST /api/v1/paths/shortest
func (h *Handler) HandleShortestPath(w http.ResponseWriter, r *http.Request) {
	if h.Engine == nil {
		h.writeError(w, http.StatusServiceUnavailable, "NO_ROAD_NETWORK", "No road network is loaded", nil)
		return
	}

	var req ShortestPathRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	algorithm := req.Algorithm
	if algorithm == "" {
		algorithm = AlgorithmDijkstra
	}
	objective, err := models.ParseObjective(req.Objective)
	if err != nil {
		h.handleValidationError(w, err.Error(), nil)
		return
	}
	if algorithm == AlgorithmAStar && objective != models.ObjectiveDistance {
		h.handleValidationError(w, "astar supports the distance objective only", map[string]string{"objective": "oneof=distance"})
		return
	}

	selector := pathfinding.SelectorFor(objective)
	var ids []string
	if algorithm == AlgorithmAStar {
		ids, err = h.Engine.FindPathStrict(req.From, req.To)
	} else {
		ids, err = h.Engine.ShortestPathStrict(req.From, req.To, selector)
	}
	if err != nil {
		if errors.Is(err, pathfinding.ErrUnknownLocation) {
			h.handleValidationError(w, err.Error(), nil)
			return
		}
		h.handleInternalError(w, err)
		return
	}

	resp := ShortestPathResponse{
		Algorithm: algorithm,
		Objective: objective,
		Path:      make([]models.Location, 0, len(ids)),
	}
	g := h.Engine.Graph()
	for _, id := range ids {
		if loc, ok := g.LocationByID(id); ok {
			resp.Path = append(resp.Path, loc)
		}
	}
	if cost, ok := h.Engine.PathCost(ids, selector); ok {
		resp.Found = true
		resp.Cost = cost
		if leg, ok := h.Engine.PathLegCost(ids, selector); ok {
			resp.DistanceKm = leg.DistanceKm
			resp.TimeHours = leg.TimeHours
		}
	}

	log.Printf("[HTTP] POST /api/v1/paths/shortest: from=%s to=%s algorithm=%s found=%v hops=%d",
		req.From, req.To, algorithm, resp.Found, len(ids))

	h.writeJSON(w, http.StatusOK, resp)
}
