// Package events announces completed optimizations to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"

	"route-optimizer/internal/models"
)

// DefaultTopic receives one message per completed optimization
const DefaultTopic = "route-optimized"

// RouteOptimized is the message body published after each optimization
type RouteOptimized struct {
	RouteID         string           `json:"route_id"`
	SessionID       string           `json:"session_id,omitempty"`
	Objective       models.Objective `json:"objective"`
	Solver          string           `json:"solver"`
	MatrixSource    string           `json:"matrix_source"`
	StopIDs         []string         `json:"stop_ids"`
	TotalDistanceKm float64          `json:"total_distance_km"`
	TotalTimeHours  float64          `json:"total_time_h"`
	Degraded        bool             `json:"degraded"`
	ComputedAt      time.Time        `json:"computed_at"`
}

// NewRouteOptimized summarizes an optimized route for publication
func NewRouteOptimized(routeID, sessionID string, route *models.OptimizedRoute) RouteOptimized {
	ids := make([]string, len(route.Locations))
	for i, loc := range route.Locations {
		ids[i] = loc.ID
	}
	return RouteOptimized{
		RouteID:         routeID,
		SessionID:       sessionID,
		Objective:       route.Objective,
		Solver:          route.Solver,
		MatrixSource:    route.MatrixSource,
		StopIDs:         ids,
		TotalDistanceKm: route.TotalDistanceKm,
		TotalTimeHours:  route.TotalTimeHours,
		Degraded:        len(route.Notices) > 0,
		ComputedAt:      route.ComputedAt,
	}
}

// Publisher sends route events
type Publisher interface {
	PublishRouteOptimized(ctx context.Context, event RouteOptimized) error
	Close() error
}

// MessageWriter is the subset of *kafka.Writer the publisher needs, so tests
// can substitute an in-memory writer
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a Kafka topic keyed by route id
type KafkaPublisher struct {
	writer MessageWriter
	topic  string
}

// NewKafkaPublisher creates a publisher writing to topic on brokers
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	if topic == "" {
		topic = DefaultTopic
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	log.Printf("[KAFKA] Publisher ready: brokers=%v topic=%s", brokers, topic)
	return &KafkaPublisher{writer: writer, topic: topic}
}

// NewKafkaPublisherWithWriter wraps an existing writer
func NewKafkaPublisherWithWriter(w MessageWriter, topic string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, topic: topic}
}

func (p *KafkaPublisher) PublishRouteOptimized(ctx context.Context, event RouteOptimized) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal route event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.RouteID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte("route.optimized")},
			{Key: "objective", Value: []byte(event.Objective)},
		},
		Time: event.ComputedAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish route event: %w", err)
	}

	log.Printf("[KAFKA] Published: topic=%s route_id=%s stops=%d", p.topic, event.RouteID, len(event.StopIDs))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NoopPublisher discards events
type NoopPublisher struct{}

func (NoopPublisher) PublishRouteOptimized(context.Context, RouteOptimized) error { return nil }
func (NoopPublisher) Close() error { return nil }
