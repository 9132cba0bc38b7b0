package bus

import (
	"context"

	"github.com/learnloop/analytics-engine/internal/realtime"
)

// Bus fans outbound events across replicas. A replica publishes every
// event it generates; every replica forwards bus traffic into its local
// SSE hub so clients can be connected anywhere.
type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	NextSeq(ctx context.Context, userKey string) (uint64, error)
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
