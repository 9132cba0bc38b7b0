package services

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/config"
	"github.com/learnloop/analytics-engine/internal/logger"
	"github.com/learnloop/analytics-engine/internal/patterns"
	"github.com/learnloop/analytics-engine/internal/repos"
	"github.com/learnloop/analytics-engine/internal/types"
)

// Cluster retraining is seeded deterministically so a restart reproduces
// the same cluster geometry for the same inputs.
const clusterSeed = 20240117

type SignatureService interface {
	Analyze(ctx context.Context, userID uuid.UUID) (*types.LearningSignature, error)
	Get(ctx context.Context, userID uuid.UUID) (*types.LearningSignature, error)
	RetrainClusters(ctx context.Context) error
}

type signatureService struct {
	db            *gorm.DB
	log           *logger.Logger
	cfg           config.SignatureConfig
	snapshotRepo  repos.SnapshotRepo
	signatureRepo repos.SignatureRepo
	notifier      SignatureNotifier

	mu       sync.RWMutex
	clusters *patterns.ClusterModel
}

func NewSignatureService(db *gorm.DB, baseLog *logger.Logger, cfg config.SignatureConfig, snapshotRepo repos.SnapshotRepo, signatureRepo repos.SignatureRepo, notifier SignatureNotifier) SignatureService {
	return &signatureService{
		db:            db,
		log:           baseLog.With("service", "SignatureService"),
		cfg:           cfg,
		snapshotRepo:  snapshotRepo,
		signatureRepo: signatureRepo,
		notifier:      notifier,
	}
}

// Analyze recomputes the user's learning signature over the recent
// snapshot window and overwrites the stored one. The cluster id comes
// from the current in-memory model and is -1 until one has been trained.
func (s *signatureService) Analyze(ctx context.Context, userID uuid.UUID) (*types.LearningSignature, error) {
	if userID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	snaps, err := s.snapshotRepo.GetLastNByUser(ctx, nil, userID, s.cfg.WindowSnapshots)
	if err != nil {
		return nil, analyticserr.Store("load snapshot window", err)
	}
	if len(snaps) == 0 {
		return nil, &analyticserr.InsufficientDataError{Have: 0, Need: 1}
	}

	style := patterns.ComputeStyleScores(snaps)
	anomalies := patterns.DetectAnomalies(snaps, s.cfg.AnomalyWindow, s.cfg.AnomalyThreshold)

	s.mu.RLock()
	model := s.clusters
	s.mu.RUnlock()
	clusterID := -1
	if model != nil {
		clusterID = model.Assign(style.Vector())
	}

	styleRaw, err := json.Marshal(style)
	if err != nil {
		return nil, err
	}
	anomalyRaw, err := json.Marshal(anomalies)
	if err != nil {
		return nil, err
	}

	signature := &types.LearningSignature{
		UserID:              userID,
		StyleScores:         datatypes.JSON(styleRaw),
		BehavioralClusterID: clusterID,
		AnomalyFlags:        datatypes.JSON(anomalyRaw),
		SampleCount:         len(snaps),
	}
	if err := s.signatureRepo.Upsert(ctx, nil, signature); err != nil {
		return nil, analyticserr.Store("upsert signature", err)
	}
	s.notifier.SignatureUpdated(ctx, userID, signature)
	return signature, nil
}

func (s *signatureService) Get(ctx context.Context, userID uuid.UUID) (*types.LearningSignature, error) {
	if userID == uuid.Nil {
		return nil, analyticserr.Validationf("user_id", "required")
	}
	row, err := s.signatureRepo.GetByUserID(ctx, nil, userID)
	if err != nil {
		return nil, analyticserr.Store("load signature", err)
	}
	if row == nil {
		return nil, &analyticserr.InsufficientDataError{Have: 0, Need: 1}
	}
	return row, nil
}

// RetrainClusters rebuilds the behavioral cluster model from the style
// vectors of every recently active user. Heavier than per-user analysis,
// so it runs on the slow cadence. Existing signatures keep their old
// cluster id until their next Analyze.
func (s *signatureService) RetrainClusters(ctx context.Context) error {
	userIDs, err := s.snapshotRepo.ListActiveUserIDs(ctx, nil, time.Now().UTC().AddDate(0, 0, -30))
	if err != nil {
		return analyticserr.Store("list active users", err)
	}

	var points [][]float64
	for _, userID := range userIDs {
		snaps, err := s.snapshotRepo.GetLastNByUser(ctx, nil, userID, s.cfg.WindowSnapshots)
		if err != nil {
			s.log.Warn("skipping user in cluster training", "user_id", userID, "error", err)
			continue
		}
		if len(snaps) == 0 {
			continue
		}
		points = append(points, patterns.ComputeStyleScores(snaps).Vector())
	}

	model, err := patterns.TrainClusters(points, s.cfg.Clusters, clusterSeed)
	if err != nil {
		if analyticserr.IsInsufficientData(err) {
			s.log.Info("not enough users to train clusters", "users", len(points))
			return nil
		}
		return err
	}

	s.mu.Lock()
	s.clusters = model
	s.mu.Unlock()
	s.log.Info("behavioral clusters retrained", "users", len(points), "k", s.cfg.Clusters)
	return nil
}
