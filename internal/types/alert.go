package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AlertCategory string

const (
	AlertPerformanceDecline AlertCategory = "performance_decline"
	AlertEngagementDrop     AlertCategory = "engagement_drop"
	AlertStagnation         AlertCategory = "stagnation"
	AlertLowConsistency     AlertCategory = "low_consistency"
)

func (c AlertCategory) Valid() bool {
	switch c {
	case AlertPerformanceDecline, AlertEngagementDrop, AlertStagnation, AlertLowConsistency:
		return true
	}
	return false
}

type AlertSeverity string

const (
	SeverityLow    AlertSeverity = "low"
	SeverityMedium AlertSeverity = "medium"
	SeverityHigh   AlertSeverity = "high"
)

// Alert is created only by the threshold evaluators (via a monitor) and
// mutated only by acknowledgment, which sets AcknowledgedAt once.
type Alert struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID      `gorm:"type:uuid;not null;index:idx_alert_user_category,priority:1" json:"user_id"`
	Category       AlertCategory  `gorm:"column:category;not null;index:idx_alert_user_category,priority:2" json:"category"`
	Severity       AlertSeverity  `gorm:"column:severity;not null" json:"severity"`
	Evidence       datatypes.JSON `gorm:"type:jsonb;column:evidence" json:"evidence,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	AcknowledgedAt *time.Time     `gorm:"column:acknowledged_at" json:"acknowledged_at,omitempty"`
}

func (Alert) TableName() string { return "alert" }
