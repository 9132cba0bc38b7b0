package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/config"
	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/types"
)

const (
	SessionEventAnswer    = "answer"
	SessionEventHeartbeat = "heartbeat"

	// Injected by snapshot fan-in, never accepted from clients.
	sessionEventObservation = "observation"
)

type SessionEvent struct {
	Type             string    `json:"type"`
	Correct          *bool     `json:"correct,omitempty"`
	Score            *float64  `json:"score,omitempty"`
	TimeSpentSeconds int       `json:"time_spent_seconds"`
	At               time.Time `json:"at"`
}

// LiveMetrics is the rolling view of one active session. Updated by the
// session's own goroutine, copied out for readers and notifications.
type LiveMetrics struct {
	SessionID        uuid.UUID  `json:"session_id"`
	UserID           uuid.UUID  `json:"user_id"`
	StartedAt        time.Time  `json:"started_at"`
	LastEventAt      time.Time  `json:"last_event_at"`
	EventCount       int        `json:"event_count"`
	Answers          int        `json:"answers"`
	CorrectAnswers   int        `json:"correct_answers"`
	Accuracy         float64    `json:"accuracy"`
	MeanScore        float64    `json:"mean_score"`
	TotalTimeSeconds int        `json:"total_time_seconds"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
}

// SessionService tracks live learning sessions. Each session is a single
// goroutine draining an ordered event channel, so events for one session
// are always applied in arrival order and readers never see a torn
// update. An idle session is closed after the inactivity timeout and
// leaves a final heartbeat snapshot behind.
type SessionService interface {
	StartSession(ctx context.Context, userID uuid.UUID) (*LiveMetrics, error)
	RecordEvent(ctx context.Context, userID, sessionID uuid.UUID, event SessionEvent) error
	GetMetrics(ctx context.Context, userID, sessionID uuid.UUID) (*LiveMetrics, error)
	EndSession(ctx context.Context, userID, sessionID uuid.UUID) (*LiveMetrics, error)
	IngestSnapshot(ctx context.Context, snap *types.PerformanceSnapshot)
	Shutdown()
}

type liveSession struct {
	userID  uuid.UUID
	events  chan SessionEvent
	done    chan struct{}
	mu      sync.RWMutex
	metrics LiveMetrics

	scoreSum float64
	scored   int
}

type sessionService struct {
	log         *logger.Logger
	cfg         config.SessionConfig
	snapshotSvc SnapshotService
	notifier    MetricsNotifier

	mu       sync.RWMutex
	sessions map[uuid.UUID]*liveSession
	wg       sync.WaitGroup
}

func NewSessionService(baseLog *logger.Logger, cfg config.SessionConfig, snapshotSvc SnapshotService, notifier MetricsNotifier) SessionService {
	return &sessionService{
		log:         baseLog.With("service", "SessionService"),
		cfg:         cfg,
		snapshotSvc: snapshotSvc,
		notifier:    notifier,
		sessions:    make(map[uuid.UUID]*liveSession),
	}
}

func (s *sessionService) StartSession(ctx context.Context, userID uuid.UUID) (*LiveMetrics, error) {
	if userID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	now := time.Now().UTC()
	sess := &liveSession{
		userID: userID,
		events: make(chan SessionEvent, s.cfg.EventBuffer),
		done:   make(chan struct{}),
		metrics: LiveMetrics{
			SessionID:   uuid.New(),
			UserID:      userID,
			StartedAt:   now,
			LastEventAt: now,
		},
	}

	s.mu.Lock()
	s.sessions[sess.metrics.SessionID] = sess
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(sess)

	s.log.Info("session started", "session_id", sess.metrics.SessionID, "user_id", userID)
	m := sess.snapshotMetrics()
	return &m, nil
}

func (s *sessionService) RecordEvent(ctx context.Context, userID, sessionID uuid.UUID, event SessionEvent) error {
	switch event.Type {
	case SessionEventAnswer, SessionEventHeartbeat:
	default:
		return analyticserr.Validationf("type", "unknown event type %q", event.Type)
	}
	if event.Score != nil && (*event.Score < 0 || *event.Score > 1) {
		return analyticserr.Validationf("score", "must be within [0,1]")
	}
	if event.TimeSpentSeconds < 0 {
		return analyticserr.Validationf("time_spent_seconds", "must be non-negative")
	}
	sess, err := s.lookup(userID, sessionID)
	if err != nil {
		return err
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	select {
	case sess.events <- event:
		return nil
	case <-sess.done:
		return analyticserr.Validationf("session_id", "session is closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *sessionService) GetMetrics(ctx context.Context, userID, sessionID uuid.UUID) (*LiveMetrics, error) {
	sess, err := s.lookup(userID, sessionID)
	if err != nil {
		return nil, err
	}
	m := sess.snapshotMetrics()
	return &m, nil
}

func (s *sessionService) EndSession(ctx context.Context, userID, sessionID uuid.UUID) (*LiveMetrics, error) {
	sess, err := s.lookup(userID, sessionID)
	if err != nil {
		return nil, err
	}
	s.close(sess, "ended")
	m := sess.snapshotMetrics()
	return &m, nil
}

// IngestSnapshot routes a freshly appended snapshot into every live
// session of its user, so metrics recompute on any new observation, not
// only on events posted against the session. Heartbeat snapshots are
// skipped: a closing session writes one itself.
func (s *sessionService) IngestSnapshot(ctx context.Context, snap *types.PerformanceSnapshot) {
	if snap == nil || snap.Source == types.SnapshotSourceHeartbeat {
		return
	}

	s.mu.RLock()
	var targets []*liveSession
	for _, sess := range s.sessions {
		if sess.userID == snap.UserID {
			targets = append(targets, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range targets {
		score := snap.Score
		event := SessionEvent{
			Type:             sessionEventObservation,
			Score:            &score,
			TimeSpentSeconds: snap.TimeSpentSeconds,
			At:               snap.ObservedAt,
		}
		select {
		case sess.events <- event:
		case <-sess.done:
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown closes every live session and waits for their goroutines.
func (s *sessionService) Shutdown() {
	s.mu.RLock()
	open := make([]*liveSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.RUnlock()

	for _, sess := range open {
		s.close(sess, "shutdown")
	}
	s.wg.Wait()
}

func (s *sessionService) lookup(userID, sessionID uuid.UUID) (*liveSession, error) {
	if sessionID == uuid.Nil {
		return nil, analyticserr.Validationf("session_id", "required")
	}
	s.mu.RLock()
	sess, ok := s.sessions[sessionID]
	s.mu.RUnlock()
	if !ok || sess.userID != userID {
		return nil, analyticserr.Validationf("session_id", "not found")
	}
	return sess, nil
}

func (s *sessionService) run(sess *liveSession) {
	defer s.wg.Done()
	idle := time.NewTimer(s.cfg.InactivityTimeout.Std())
	defer idle.Stop()

	for {
		select {
		case event := <-sess.events:
			sess.apply(event)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.InactivityTimeout.Std())

			m := sess.snapshotMetrics()
			s.notifier.MetricsUpdated(context.Background(), sess.userID, &m)
		case <-idle.C:
			s.close(sess, "inactivity")
			return
		case <-sess.done:
			return
		}
	}
}

// close is safe to call from any goroutine and any number of times; the
// first call wins and records the terminal heartbeat snapshot.
func (s *sessionService) close(sess *liveSession, reason string) {
	sess.mu.Lock()
	if sess.metrics.EndedAt != nil {
		sess.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	sess.metrics.EndedAt = &now
	close(sess.done)
	metrics := sess.metrics
	sess.mu.Unlock()

	s.mu.Lock()
	delete(s.sessions, metrics.SessionID)
	s.mu.Unlock()

	if metrics.EventCount > 0 {
		score := metrics.MeanScore
		if metrics.Answers > 0 {
			score = metrics.Accuracy
		}
		if _, err := s.snapshotSvc.Record(context.Background(), RecordSnapshotInput{
			UserID:           metrics.UserID,
			Score:            score,
			TimeSpentSeconds: metrics.TotalTimeSeconds,
			Source:           types.SnapshotSourceHeartbeat,
			ObservedAt:       now,
		}); err != nil {
			s.log.Warn("session summary snapshot not recorded", "session_id", metrics.SessionID, "error", err)
		}
	}
	s.log.Info("session closed", "session_id", metrics.SessionID, "reason", reason, "events", metrics.EventCount)
}

func (sess *liveSession) apply(event SessionEvent) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	sess.metrics.EventCount++
	sess.metrics.LastEventAt = event.At
	sess.metrics.TotalTimeSeconds += event.TimeSpentSeconds

	if event.Type == SessionEventAnswer {
		sess.metrics.Answers++
		if event.Correct != nil && *event.Correct {
			sess.metrics.CorrectAnswers++
		}
		sess.metrics.Accuracy = float64(sess.metrics.CorrectAnswers) / float64(sess.metrics.Answers)
	}
	if event.Score != nil {
		sess.scoreSum += *event.Score
		sess.scored++
		sess.metrics.MeanScore = sess.scoreSum / float64(sess.scored)
	}
}

func (sess *liveSession) snapshotMetrics() LiveMetrics {
	sess.mu.RLock()
	defer sess.mu.RUnlock()
	return sess.metrics
}
