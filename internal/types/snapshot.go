package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	SnapshotSourceQuiz      = "quiz"
	SnapshotSourceExercise  = "exercise"
	SnapshotSourceHeartbeat = "session_heartbeat"
)

// PerformanceSnapshot is an immutable observation of learner performance.
// Rows are append-only: no updates, no soft delete. Rows older than the
// retention window are compacted into SnapshotDailyAggregate.
type PerformanceSnapshot struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;index:idx_snapshot_user_skill_time,priority:1" json:"user_id"`
	SkillID          *uuid.UUID `gorm:"type:uuid;index:idx_snapshot_user_skill_time,priority:2" json:"skill_id,omitempty"`
	Score            float64    `gorm:"column:score;not null" json:"score"`
	TimeSpentSeconds int        `gorm:"column:time_spent_seconds;not null;default:0" json:"time_spent_seconds"`
	Source           string     `gorm:"column:source;not null" json:"source"`
	ObservedAt       time.Time  `gorm:"column:observed_at;not null;index:idx_snapshot_user_skill_time,priority:3" json:"observed_at"`
	CreatedAt        time.Time  `gorm:"not null" json:"created_at"`
}

func (PerformanceSnapshot) TableName() string { return "performance_snapshot" }

// SnapshotDailyAggregate holds one compacted day of snapshots per
// (user, skill) once raw rows fall out of the retention window.
type SnapshotDailyAggregate struct {
	ID               uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID           uuid.UUID  `gorm:"type:uuid;not null;index:idx_daily_agg,unique,priority:1" json:"user_id"`
	SkillID          *uuid.UUID `gorm:"type:uuid;index:idx_daily_agg,unique,priority:2" json:"skill_id,omitempty"`
	Day              time.Time  `gorm:"column:day;not null;index:idx_daily_agg,unique,priority:3" json:"day"`
	SnapshotCount    int        `gorm:"column:snapshot_count;not null" json:"snapshot_count"`
	MeanScore        float64    `gorm:"column:mean_score;not null" json:"mean_score"`
	TotalTimeSeconds int        `gorm:"column:total_time_seconds;not null" json:"total_time_seconds"`
	CreatedAt        time.Time  `gorm:"not null" json:"created_at"`
}

func (SnapshotDailyAggregate) TableName() string { return "snapshot_daily_aggregate" }
