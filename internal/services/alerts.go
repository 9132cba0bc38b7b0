package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/repos"
	"github.com/learnloop/analytics-engine/internal/thresholds"
	"github.com/learnloop/analytics-engine/internal/types"
)

type AlertService interface {
	RaiseCandidates(ctx context.Context, userID uuid.UUID, candidates []thresholds.Candidate) ([]*types.Alert, error)
	Acknowledge(ctx context.Context, userID, alertID uuid.UUID) (*types.Alert, error)
	ListForUser(ctx context.Context, userID uuid.UUID, includeAcknowledged bool, limit int) ([]*types.Alert, error)
}

type alertService struct {
	db        *gorm.DB
	log       *logger.Logger
	alertRepo repos.AlertRepo
	notifier  AlertNotifier
}

func NewAlertService(db *gorm.DB, baseLog *logger.Logger, alertRepo repos.AlertRepo, notifier AlertNotifier) AlertService {
	return &alertService{
		db:        db,
		log:       baseLog.With("service", "AlertService"),
		alertRepo: alertRepo,
		notifier:  notifier,
	}
}

// RaiseCandidates persists evaluator candidates, deduplicating against
// unacknowledged alerts of the same category, and notifies for each alert
// that actually lands.
func (s *alertService) RaiseCandidates(ctx context.Context, userID uuid.UUID, candidates []thresholds.Candidate) ([]*types.Alert, error) {
	if userID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	var created []*types.Alert
	for _, cand := range candidates {
		evidence, err := json.Marshal(cand.Evidence)
		if err != nil {
			s.log.Warn("evidence not serializable, dropping candidate", "category", cand.Category, "error", err)
			continue
		}
		alert := &types.Alert{
			ID:        uuid.New(),
			UserID:    userID,
			Category:  cand.Category,
			Severity:  cand.Severity,
			Evidence:  datatypes.JSON(evidence),
			CreatedAt: time.Now().UTC(),
		}
		inserted, err := s.alertRepo.CreateIfNoneUnacknowledged(ctx, nil, alert)
		if err != nil {
			return created, analyticserr.Store("create alert", err)
		}
		if !inserted {
			continue
		}
		created = append(created, alert)
		s.notifier.AlertCreated(ctx, userID, alert)
		s.log.Info("alert raised", "user_id", userID, "category", cand.Category, "severity", cand.Severity)
	}
	return created, nil
}

// Acknowledge is idempotent: acknowledging an already-acknowledged alert
// returns it unchanged.
func (s *alertService) Acknowledge(ctx context.Context, userID, alertID uuid.UUID) (*types.Alert, error) {
	if alertID == uuid.Nil {
		return nil, analyticserr.Validationf("alert_id", "required")
	}
	alert, err := s.alertRepo.GetByID(ctx, nil, alertID)
	if err != nil {
		return nil, analyticserr.Store("load alert", err)
	}
	if alert == nil || alert.UserID != userID {
		return nil, analyticserr.Validationf("alert_id", "not found")
	}
	if alert.AcknowledgedAt != nil {
		return alert, nil
	}
	at := time.Now().UTC()
	if _, err := s.alertRepo.Acknowledge(ctx, nil, alertID, at); err != nil {
		return nil, analyticserr.Store("acknowledge alert", err)
	}
	alert.AcknowledgedAt = &at
	return alert, nil
}

func (s *alertService) ListForUser(ctx context.Context, userID uuid.UUID, includeAcknowledged bool, limit int) ([]*types.Alert, error) {
	if userID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	rows, err := s.alertRepo.GetByUserID(ctx, nil, userID, includeAcknowledged, limit)
	if err != nil {
		return nil, analyticserr.Store("list alerts", err)
	}
	return rows, nil
}
