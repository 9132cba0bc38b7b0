package scheduler

import (
	"math"
	"testing"
	"time"

	"github.com/learnloop/analytics-engine/internal/analyticserr"
	"github.com/learnloop/analytics-engine/internal/types"
)

var gradeNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newCard() types.ReviewItem {
	return types.ReviewItem{
		EasinessFactor: InitialEasinessFactor,
		IntervalDays:   0,
		Repetitions:    0,
	}
}

func TestGradeRejectsOutOfRangeQuality(t *testing.T) {
	for _, q := range []int{-1, 6, 100} {
		_, err := Grade(Config{}, newCard(), q, gradeNow)
		if err == nil {
			t.Fatalf("quality %d: expected error", q)
		}
		if !analyticserr.IsValidation(err) {
			t.Fatalf("quality %d: expected validation error, got %v", q, err)
		}
	}
}

func TestGradeSuccessSequence(t *testing.T) {
	// Three quality=4 grades in a row: intervals 1, 6, round(6*EF').
	cfg := Config{}
	item := newCard()

	item, err := Grade(cfg, item, 4, gradeNow)
	if err != nil {
		t.Fatalf("grade 1: %v", err)
	}
	if item.IntervalDays != 1 || item.Repetitions != 1 {
		t.Fatalf("grade 1: interval=%d reps=%d", item.IntervalDays, item.Repetitions)
	}

	item, err = Grade(cfg, item, 4, gradeNow.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("grade 2: %v", err)
	}
	if item.IntervalDays != 6 || item.Repetitions != 2 {
		t.Fatalf("grade 2: interval=%d reps=%d", item.IntervalDays, item.Repetitions)
	}

	efBefore := item.EasinessFactor
	item, err = Grade(cfg, item, 4, gradeNow.AddDate(0, 0, 7))
	if err != nil {
		t.Fatalf("grade 3: %v", err)
	}
	wantEF := efBefore + efDelta(4)
	want := int(math.Round(6 * wantEF))
	if item.IntervalDays != want {
		t.Fatalf("grade 3: interval=%d want=%d (EF=%f)", item.IntervalDays, want, item.EasinessFactor)
	}
	if item.Repetitions != 3 {
		t.Fatalf("grade 3: reps=%d", item.Repetitions)
	}
}

func TestGradeFailureResetsProgress(t *testing.T) {
	item := newCard()
	item.Repetitions = 7
	item.IntervalDays = 120
	item.EasinessFactor = 2.1

	for q := 0; q < 3; q++ {
		got, err := Grade(Config{}, item, q, gradeNow)
		if err != nil {
			t.Fatalf("quality %d: %v", q, err)
		}
		if got.Repetitions != 0 {
			t.Fatalf("quality %d: repetitions=%d, want 0", q, got.Repetitions)
		}
		if got.IntervalDays != 1 {
			t.Fatalf("quality %d: interval=%d, want 1", q, got.IntervalDays)
		}
		if got.EasinessFactor >= item.EasinessFactor {
			t.Fatalf("quality %d: EF %f did not decrease from %f", q, got.EasinessFactor, item.EasinessFactor)
		}
	}
}

func TestGradeMonotonicGrowthUntilCap(t *testing.T) {
	cfg := Config{MaxIntervalDays: 365}
	item := newCard()
	prevInterval := 0
	now := gradeNow

	for i := 0; i < 30; i++ {
		var err error
		item, err = Grade(cfg, item, 5, now)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
		if item.EasinessFactor < MinEasinessFactor {
			t.Fatalf("iteration %d: EF %f below floor", i, item.EasinessFactor)
		}
		if item.IntervalDays > cfg.MaxIntervalDays {
			t.Fatalf("iteration %d: interval %d above cap", i, item.IntervalDays)
		}
		if item.IntervalDays < prevInterval && prevInterval < cfg.MaxIntervalDays {
			t.Fatalf("iteration %d: interval %d shrank from %d", i, item.IntervalDays, prevInterval)
		}
		prevInterval = item.IntervalDays
		now = item.DueAt
	}
	if prevInterval != cfg.MaxIntervalDays {
		t.Fatalf("interval should reach the cap, ended at %d", prevInterval)
	}
}

func TestGradeEFFloor(t *testing.T) {
	item := newCard()
	item.EasinessFactor = 1.31
	for i := 0; i < 5; i++ {
		var err error
		item, err = Grade(Config{}, item, 0, gradeNow)
		if err != nil {
			t.Fatalf("iteration %d: %v", i, err)
		}
	}
	if item.EasinessFactor != MinEasinessFactor {
		t.Fatalf("EF=%f, want floor %f", item.EasinessFactor, MinEasinessFactor)
	}
}

func TestGradeSetsDueAtFromInterval(t *testing.T) {
	item, err := Grade(Config{}, newCard(), 3, gradeNow)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if item.LastReviewedAt == nil || !item.LastReviewedAt.Equal(gradeNow) {
		t.Fatalf("last reviewed: %v", item.LastReviewedAt)
	}
	wantDue := gradeNow.AddDate(0, 0, 1)
	if !item.DueAt.Equal(wantDue) {
		t.Fatalf("due at: got=%v want=%v", item.DueAt, wantDue)
	}
}

func TestGradeDefaultsZeroEF(t *testing.T) {
	item, err := Grade(Config{}, types.ReviewItem{}, 4, gradeNow)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if item.EasinessFactor < MinEasinessFactor {
		t.Fatalf("EF=%f", item.EasinessFactor)
	}
}
