package scheduler

import (
	"math"
	"time"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/types"
)

const (
	MinEasinessFactor     = 1.3
	InitialEasinessFactor = 2.5
	DefaultMaxIntervalDays = 365
)

// Config bounds the scheduler. The zero value is usable; MaxIntervalDays
// defaults to DefaultMaxIntervalDays.
type Config struct {
	MaxIntervalDays int
}

func (c Config) maxInterval() int {
	if c.MaxIntervalDays <= 0 {
		return DefaultMaxIntervalDays
	}
	return c.MaxIntervalDays
}

// Grade applies one SM-2 review outcome to a card and returns the updated
// copy. Pure: the caller persists the result and records the matching
// performance snapshot.
//
// quality < 3 resets repetitions and schedules the card for tomorrow;
// quality >= 3 grows the interval 1 -> 6 -> round(prev * EF'). The easiness
// factor moves by 0.1 - (5-q)*(0.08 + (5-q)*0.02) and never drops below
// MinEasinessFactor.
func Grade(cfg Config, item types.ReviewItem, quality int, now time.Time) (types.ReviewItem, error) {
	if quality < 0 || quality > 5 {
		return types.ReviewItem{}, analyticserr.Validationf("quality", "must be in [0,5], got %d", quality)
	}
	if item.EasinessFactor == 0 {
		item.EasinessFactor = InitialEasinessFactor
	}

	updated := item
	if quality < 3 {
		updated.Repetitions = 0
		updated.IntervalDays = 1
		updated.EasinessFactor = clampEF(item.EasinessFactor + efDelta(quality))
	} else {
		updated.Repetitions = item.Repetitions + 1
		updated.EasinessFactor = clampEF(item.EasinessFactor + efDelta(quality))
		switch updated.Repetitions {
		case 1:
			updated.IntervalDays = 1
		case 2:
			updated.IntervalDays = 6
		default:
			next := int(math.Round(float64(item.IntervalDays) * updated.EasinessFactor))
			if next < 1 {
				next = 1
			}
			updated.IntervalDays = next
		}
	}
	if max := cfg.maxInterval(); updated.IntervalDays > max {
		updated.IntervalDays = max
	}

	reviewed := now.UTC()
	updated.LastReviewedAt = &reviewed
	updated.DueAt = reviewed.AddDate(0, 0, updated.IntervalDays)
	return updated, nil
}

// efDelta is the standard SM-2 easiness adjustment for a quality grade.
func efDelta(quality int) float64 {
	q := float64(quality)
	return 0.1 - (5-q)*(0.08+(5-q)*0.02)
}

func clampEF(ef float64) float64 {
	if ef < MinEasinessFactor {
		return MinEasinessFactor
	}
	return ef
}
