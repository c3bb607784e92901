package graph

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"route-optimizer/internal/models"
)

type networkFile struct {
	Locations []models.Location `json:"locations"`
	Roads     []roadRecord      `json:"roads"`
}

type roadRecord struct {
	From              string   `json:"from"`
	To                string   `json:"to"`
	DistanceKm        float64  `json:"distance_km"`
	TimeHours         float64  `json:"time_h"`
	TrafficMultiplier *float64 `json:"traffic_multiplier"`
}

// LoadFromFile reads a road network JSON file
func LoadFromFile(path string) (*GeoGraph, error) {
	log.Printf("[GRAPH] Loading road network: path=%s", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open road network file: %w", err)
	}
	defer file.Close()

	return LoadFromJSON(file)
}

// LoadFromJSON builds a graph from a road network document. Every road is
// inserted in both directions. Unlike AddEdge, the loader rejects roads whose
// endpoints are not declared locations.
func LoadFromJSON(r io.Reader) (*GeoGraph, error) {
	var doc networkFile
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("could not parse road network: %w", err)
	}

	g := New()
	for _, loc := range doc.Locations {
		if loc.ID == "" {
			return nil, fmt.Errorf("location %q has no id", loc.Name)
		}
		if err := loc.Validate(); err != nil {
			return nil, fmt.Errorf("location %s: %w", loc.ID, err)
		}
		g.AddLocation(loc)
	}

	for i, road := range doc.Roads {
		if !g.HasLocation(road.From) || !g.HasLocation(road.To) {
			return nil, fmt.Errorf("road %d references unknown location: %s -> %s", i, road.From, road.To)
		}
		if road.DistanceKm < 0 || road.TimeHours < 0 {
			return nil, fmt.Errorf("road %d has negative cost", i)
		}

		multiplier := models.DefaultTrafficMultiplier
		if road.TrafficMultiplier != nil {
			if *road.TrafficMultiplier < 1 {
				return nil, fmt.Errorf("road %d has traffic multiplier %v below 1.0", i, *road.TrafficMultiplier)
			}
			multiplier = *road.TrafficMultiplier
		}

		g.AddEdge(models.Edge{
			From:              road.From,
			To:                road.To,
			DistanceKm:        road.DistanceKm,
			TimeHours:         road.TimeHours,
			TrafficMultiplier: multiplier,
		})
	}

	log.Printf("[GRAPH] Road network loaded: locations=%d roads=%d", len(doc.Locations), len(doc.Roads))
	return g, nil
}
