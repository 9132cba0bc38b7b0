package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Forecast is a derived fact, regenerated rather than mutated. Prior rows
// are retained so the UI can show the forecast trend over time.
type Forecast struct {
	ID                uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index:idx_forecast_user_generated,priority:1" json:"user_id"`
	HorizonDays       int            `gorm:"column:horizon_days;not null" json:"horizon_days"`
	PredictedProb     float64        `gorm:"column:predicted_completion_probability;not null" json:"predicted_completion_probability"`
	ConfidenceLow     float64        `gorm:"column:confidence_low;not null" json:"confidence_low"`
	ConfidenceHigh    float64        `gorm:"column:confidence_high;not null" json:"confidence_high"`
	ModelBreakdown    datatypes.JSON `gorm:"type:jsonb;column:model_breakdown" json:"model_breakdown,omitempty"`
	SnapshotCount     int            `gorm:"column:snapshot_count;not null;default:0" json:"snapshot_count"`
	LowConfidence     bool           `gorm:"column:low_confidence;not null;default:false" json:"low_confidence"`
	GeneratedAt       time.Time      `gorm:"column:generated_at;not null;index:idx_forecast_user_generated,priority:2" json:"generated_at"`
	CreatedAt         time.Time      `gorm:"not null" json:"created_at"`
}

func (Forecast) TableName() string { return "forecast" }
