package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// LearningSignature is the slowly-changing per-user profile. Overwritten
// in place: only the current signature is actionable.
type LearningSignature struct {
	ID                  uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID              uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"user_id"`
	StyleScores         datatypes.JSON `gorm:"type:jsonb;column:style_scores" json:"style_scores,omitempty"`
	BehavioralClusterID int            `gorm:"column:behavioral_cluster_id;not null" json:"behavioral_cluster_id"`
	AnomalyFlags        datatypes.JSON `gorm:"type:jsonb;column:anomaly_flags" json:"anomaly_flags,omitempty"`
	SampleCount         int            `gorm:"column:sample_count;not null;default:0" json:"sample_count"`
	CreatedAt           time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"not null" json:"updated_at"`
}

func (LearningSignature) TableName() string { return "learning_signature" }
