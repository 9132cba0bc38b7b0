package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/learnloop/analytics-engine/internal/realtime"
	"github.com/learnloop/analytics-engine/internal/types"
)

// =========================
// Alert notifier
// =========================

type AlertNotifier interface {
	AlertCreated(ctx context.Context, userID uuid.UUID, alert *types.Alert)
}

type alertNotifier struct {
	emit SSEEmitter
	seq  *EventSequencer
}

func NewAlertNotifier(emit SSEEmitter, seq *EventSequencer) AlertNotifier {
	return &alertNotifier{emit: emit, seq: seq}
}

func (n *alertNotifier) AlertCreated(ctx context.Context, userID uuid.UUID, alert *types.Alert) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	key := userID.String()
	n.emit.Emit(ctx, realtime.SSEMessage{
		Channel: key,
		Event:   realtime.SSEEventAlertCreated,
		Seq:     n.seq.Next(ctx, key),
		Data:    map[string]any{"alert": alert},
	})
}

// =========================
// Metrics notifier
// =========================

type MetricsNotifier interface {
	MetricsUpdated(ctx context.Context, userID uuid.UUID, metrics *LiveMetrics)
}

type metricsNotifier struct {
	emit SSEEmitter
	seq  *EventSequencer
}

func NewMetricsNotifier(emit SSEEmitter, seq *EventSequencer) MetricsNotifier {
	return &metricsNotifier{emit: emit, seq: seq}
}

func (n *metricsNotifier) MetricsUpdated(ctx context.Context, userID uuid.UUID, metrics *LiveMetrics) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	key := userID.String()
	n.emit.Emit(ctx, realtime.SSEMessage{
		Channel: key,
		Event:   realtime.SSEEventMetricsUpdated,
		Seq:     n.seq.Next(ctx, key),
		Data:    map[string]any{"metrics": metrics},
	})
}

// =========================
// Forecast notifier
// =========================

type ForecastNotifier interface {
	ForecastUpdated(ctx context.Context, userID uuid.UUID, forecast *types.Forecast)
}

type forecastNotifier struct {
	emit SSEEmitter
	seq  *EventSequencer
}

func NewForecastNotifier(emit SSEEmitter, seq *EventSequencer) ForecastNotifier {
	return &forecastNotifier{emit: emit, seq: seq}
}

func (n *forecastNotifier) ForecastUpdated(ctx context.Context, userID uuid.UUID, forecast *types.Forecast) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	key := userID.String()
	n.emit.Emit(ctx, realtime.SSEMessage{
		Channel: key,
		Event:   realtime.SSEEventForecastUpdated,
		Seq:     n.seq.Next(ctx, key),
		Data:    map[string]any{"forecast": forecast},
	})
}

// =========================
// Signature notifier
// =========================

type SignatureNotifier interface {
	SignatureUpdated(ctx context.Context, userID uuid.UUID, signature *types.LearningSignature)
}

type signatureNotifier struct {
	emit SSEEmitter
	seq  *EventSequencer
}

func NewSignatureNotifier(emit SSEEmitter, seq *EventSequencer) SignatureNotifier {
	return &signatureNotifier{emit: emit, seq: seq}
}

func (n *signatureNotifier) SignatureUpdated(ctx context.Context, userID uuid.UUID, signature *types.LearningSignature) {
	if n == nil || n.emit == nil || userID == uuid.Nil {
		return
	}
	key := userID.String()
	n.emit.Emit(ctx, realtime.SSEMessage{
		Channel: key,
		Event:   realtime.SSEEventSignatureUpdated,
		Seq:     n.seq.Next(ctx, key),
		Data:    map[string]any{"signature": signature},
	})
}
