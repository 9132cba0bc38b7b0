package types

import (
	"time"

	"github.com/google/uuid"
)

// ReviewItem is one spaced-repetition card. Owned by the scheduler core:
// mutated only by grading, never deleted, only retired when the parent
// content goes away.
type ReviewItem struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID  `gorm:"type:uuid;not null;index:idx_review_user_item,unique,priority:1;index:idx_review_user_due,priority:1" json:"user_id"`
	ItemID         uuid.UUID  `gorm:"type:uuid;not null;index:idx_review_user_item,unique,priority:2" json:"item_id"`
	EasinessFactor float64    `gorm:"column:easiness_factor;not null;default:2.5" json:"easiness_factor"`
	IntervalDays   int        `gorm:"column:interval_days;not null;default:0" json:"interval_days"`
	Repetitions    int        `gorm:"column:repetitions;not null;default:0" json:"repetitions"`
	DueAt          time.Time  `gorm:"column:due_at;not null;index:idx_review_user_due,priority:2" json:"due_at"`
	LastReviewedAt *time.Time `gorm:"column:last_reviewed_at" json:"last_reviewed_at,omitempty"`
	Retired        bool       `gorm:"column:retired;not null;default:false" json:"retired"`
	CreatedAt      time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time  `gorm:"not null" json:"updated_at"`
}

func (ReviewItem) TableName() string { return "review_item" }
