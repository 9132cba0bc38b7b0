package realtime

type SSEEvent string

const (
	SSEEventAlertCreated     SSEEvent = "alert.created"
	SSEEventMetricsUpdated   SSEEvent = "metrics.updated"
	SSEEventForecastUpdated  SSEEvent = "forecast.updated"
	SSEEventSignatureUpdated SSEEvent = "signature.updated"
)

// SSEMessage is one outbound push event. Seq is a per-user monotonically
// increasing number so clients can order and deduplicate across an
// at-least-once delivery channel.
type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Seq     uint64   `json:"seq"`
	Data    any      `json:"data,omitempty"`
}
