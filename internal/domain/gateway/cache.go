package gateway

import (
	"context"
	"time"

	"consultation-booking/internal/domain/entity"
)

// SlotLocker is a fast advisory hold on a slot keyed by owner.
type SlotLocker interface {
	Claim(ctx context.Context, slot entity.Slot, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, slot entity.Slot, owner string) error
}

// EventDeduper remembers payment events that were fully processed.
type EventDeduper interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, eventID string) error
}
