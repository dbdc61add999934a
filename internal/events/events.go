// Package events publishes engine outcomes to the notification
// collaborators over Kafka. The engine hands results across this boundary
// and moves on; delivery failures are surfaced to the caller, never retried
// here.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/landloop/territory-engine/model"
)

const (
	// TopicClaims carries claim verdicts (accepted and rejected).
	TopicClaims = "territory.claims"
	// TopicViolations carries forced session aborts.
	TopicViolations = "territory.violations"
)

// ClaimEvent is the wire shape of a claim verdict.
type ClaimEvent struct {
	SessionID  string             `json:"session_id"`
	OwnerID    string             `json:"owner_id"`
	Accepted   bool               `json:"accepted"`
	Reason     model.RejectReason `json:"reason"`
	ConflictID string             `json:"conflict_id,omitempty"`
	// TerritoryID is the id the storage collaborator assigned, set only
	// on acceptance.
	TerritoryID string    `json:"territory_id,omitempty"`
	AreaM2      float64   `json:"area_m2,omitempty"`
	At          time.Time `json:"at"`
}

// ViolationEvent is the wire shape of a forced abort.
type ViolationEvent struct {
	SessionID   string              `json:"session_id"`
	OwnerID     string              `json:"owner_id"`
	Kind        model.CollisionKind `json:"kind"`
	TerritoryID string              `json:"territory_id,omitempty"`
	// PathGeoJSON is the recorded path as a GeoJSON LineString, retained
	// for diagnostics only.
	PathGeoJSON json.RawMessage `json:"path_geojson,omitempty"`
	At          time.Time       `json:"at"`
}

// Publisher is the event boundary the engine writes to.
type Publisher interface {
	PublishClaim(ctx context.Context, ev ClaimEvent) error
	PublishViolation(ctx context.Context, ev ViolationEvent) error
	Close() error
}

// KafkaPublisher writes events to the claim and violation topics, keyed by
// owner so one user's events stay ordered.
type KafkaPublisher struct {
	claims     *kafka.Writer
	violations *kafka.Writer
}

// NewKafkaPublisher constructs a publisher against the given brokers.
func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	newWriter := func(topic string) *kafka.Writer {
		return &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		}
	}
	return &KafkaPublisher{
		claims:     newWriter(TopicClaims),
		violations: newWriter(TopicViolations),
	}
}

func (p *KafkaPublisher) PublishClaim(ctx context.Context, ev ClaimEvent) error {
	return publish(ctx, p.claims, ev.OwnerID, ev)
}

func (p *KafkaPublisher) PublishViolation(ctx context.Context, ev ViolationEvent) error {
	return publish(ctx, p.violations, ev.OwnerID, ev)
}

func (p *KafkaPublisher) Close() error {
	if err := p.claims.Close(); err != nil {
		p.violations.Close()
		return err
	}
	return p.violations.Close()
}

func publish(ctx context.Context, w *kafka.Writer, key string, ev any) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: msg})
}

// Noop drops all events; used when no brokers are configured and in tests.
type Noop struct{}

func (Noop) PublishClaim(context.Context, ClaimEvent) error         { return nil }
func (Noop) PublishViolation(context.Context, ViolationEvent) error { return nil }
func (Noop) Close() error                                           { return nil }
