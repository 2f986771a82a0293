package study_test

import (
	"errors"
	"testing"
	"time"

	"psorcast/internal/services"
	"psorcast/internal/study"
)

func TestValidateHistoryItem(t *testing.T) {
	coverage := 0.25
	item := study.HistoryItem{
		TaskIdentifier: study.PsoriasisDraw,
		Date:           time.Date(2020, 3, 25, 10, 0, 0, 0, time.UTC),
		ImageName:      "psoriasisDrawTask_2020-03-25T10:00:00.000+0000.jpg",
		Coverage:       &coverage,
	}
	if err := study.ValidateStruct(item); err != nil {
		t.Fatalf("expected valid item, got %v", err)
	}
	if !item.HasImage() {
		t.Fatal("expected image")
	}

	bad := item
	bad.TaskIdentifier = "unknownTask"
	if err := study.ValidateStruct(bad); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown task, got %v", err)
	}

	over := 1.5
	bad = item
	bad.Coverage = &over
	if err := study.ValidateStruct(bad); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for coverage, got %v", err)
	}

	bad = item
	bad.ImageName = "frame.png"
	if err := study.ValidateStruct(bad); err == nil {
		t.Fatal("expected validation error for non-jpg image")
	}
}

func TestDaysBetween(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skipf("timezone data unavailable: %v", err)
	}
	before := time.Date(2020, 3, 7, 23, 30, 0, 0, loc)
	after := time.Date(2020, 3, 9, 0, 15, 0, 0, loc)
	if got := study.DaysBetween(before, after); got != 2 {
		t.Fatalf("across DST: got %d want 2", got)
	}
	if got := study.DaysBetween(after, before); got != -2 {
		t.Fatalf("reversed: got %d want -2", got)
	}
	start := study.StartOfDay(after)
	if start.Hour() != 0 || start.Day() != 9 || start.Location() != loc {
		t.Fatalf("unexpected start of day %s", start)
	}
	if got := study.AddDays(before, 1); got.Day() != 8 || got.Hour() != 23 {
		t.Fatalf("AddDays should keep wall clock, got %s", got)
	}
}
