package realtime

import "sync"

// SequenceSource hands out per-user monotonically increasing sequence
// numbers for outbound events. Safe for concurrent use.
type SequenceSource struct {
	mu   sync.Mutex
	next map[string]uint64
}

func NewSequenceSource() *SequenceSource {
	return &SequenceSource{next: make(map[string]uint64)}
}

func (s *SequenceSource) Next(key string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next[key]++
	return s.next[key]
}

// Seed raises the floor for a key, e.g. from a shared Redis counter when
// multiple replicas publish for the same user.
func (s *SequenceSource) Seed(key string, floor uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next[key] < floor {
		s.next[key] = floor
	}
}
