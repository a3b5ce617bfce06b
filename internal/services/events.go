package services

import (
	"context"
	"time"

	"github.com/fuseproject/fuse/backend/internal/models"
	"github.com/fuseproject/fuse/backend/pkg/bus"
)

const (
	EventGroupCreated = "group.created"
	EventGroupUpdated = "group.updated"
	EventGroupDeleted = "group.deleted"
)

// GroupEvent is published on every group change for the search indexer.
type GroupEvent struct {
	Type        string             `json:"type"`
	Kind        models.GroupKind   `json:"kind"`
	GroupID     uint               `json:"group_id"`
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Restriction models.Restriction `json:"restriction"`
	OwnerID     uint               `json:"owner_id"`
	ActorID     uint               `json:"actor_id"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

func newGroupEvent(eventType string, group models.Group, actorID uint, now time.Time) GroupEvent {
	base := group.Base()
	return GroupEvent{
		Type:        eventType,
		Kind:        group.Ref().Kind,
		GroupID:     base.ID,
		Name:        base.Name,
		Description: base.Description,
		Restriction: base.Restriction,
		OwnerID:     base.OwnerID,
		ActorID:     actorID,
		OccurredAt:  now,
	}
}

// Publisher delivers group events. Delivery is best effort.
type Publisher interface {
	Publish(ctx context.Context, event GroupEvent)
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, GroupEvent) {}

// BusPublisher publishes to <prefix>.<event type> on NATS JetStream.
type BusPublisher struct {
	bus    *bus.Bus
	prefix string
}

func NewBusPublisher(b *bus.Bus, prefix string) *BusPublisher {
	return &BusPublisher{bus: b, prefix: prefix}
}

// Subjects returns the wildcard the group stream must capture.
func (p *BusPublisher) Subjects() []string {
	return []string{p.prefix + ".group.>"}
}

func (p *BusPublisher) Publish(ctx context.Context, event GroupEvent) {
	subject := p.prefix + "." + event.Type
	if err := p.bus.Publish(ctx, subject, event); err != nil {
		eventPublishFailures.WithLabelValues(event.Type).Inc()
		componentLog("events").Warn().Err(err).
			Str("subject", subject).
			Str("group_kind", string(event.Kind)).
			Uint("group_id", event.GroupID).
			Msg("failed to publish group event")
	}
}
