package services

import (
	"context"

	"github.com/learnloop/analytics-engine/internal/realtime"
	"github.com/learnloop/analytics-engine/internal/realtime/bus"
)

// EventSequencer assigns per-user sequence numbers to outbound events.
// With a bus configured the numbers come from a shared Redis counter so
// they stay monotonic across replicas; without one the in-process source
// is authoritative. The local source is seeded from every bus-issued
// number so a Redis outage degrades to local continuity instead of
// restarting from zero.
type EventSequencer struct {
	local *realtime.SequenceSource
	bus   bus.Bus
}

func NewEventSequencer(b bus.Bus) *EventSequencer {
	return &EventSequencer{local: realtime.NewSequenceSource(), bus: b}
}

func (s *EventSequencer) Next(ctx context.Context, userKey string) uint64 {
	if s.bus != nil {
		if n, err := s.bus.NextSeq(ctx, userKey); err == nil {
			s.local.Seed(userKey, n)
			return n
		}
	}
	return s.local.Next(userKey)
}
