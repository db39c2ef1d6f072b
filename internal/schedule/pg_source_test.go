package schedule

import (
	"testing"
	"time"
)

func TestExpandWeekly(t *testing.T) {
	// Tuesday 2026-09-01 through the following Monday.
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	weekly := []weeklyWindow{
		{weekday: time.Tuesday, startMin: 9 * 60, endMin: 12 * 60},
		{weekday: time.Tuesday, startMin: 13 * 60, endMin: 17 * 60},
		{weekday: time.Friday, startMin: 9 * 60, endMin: 14 * 60},
	}

	got := expandWeekly(weekly, from, to)
	if len(got) != 3 {
		t.Fatalf("got %d windows, want 3", len(got))
	}

	tue9 := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	if !got[0].Start.Equal(tue9) || !got[0].End.Equal(tue9.Add(3*time.Hour)) {
		t.Errorf("first window = %v-%v", got[0].Start, got[0].End)
	}
	fri9 := time.Date(2026, 9, 4, 9, 0, 0, 0, time.UTC)
	if !got[2].Start.Equal(fri9) || !got[2].End.Equal(fri9.Add(5*time.Hour)) {
		t.Errorf("friday window = %v-%v", got[2].Start, got[2].End)
	}
}

func TestExpandWeeklySkipsInvalidAndOutOfRange(t *testing.T) {
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC) // Tuesday
	to := from.AddDate(0, 0, 2)

	weekly := []weeklyWindow{
		{weekday: time.Tuesday, startMin: 17 * 60, endMin: 9 * 60}, // inverted
		{weekday: time.Friday, startMin: 9 * 60, endMin: 12 * 60},  // outside [from, to)
		{weekday: time.Wednesday, startMin: 9 * 60, endMin: 12 * 60},
	}

	got := expandWeekly(weekly, from, to)
	if len(got) != 1 {
		t.Fatalf("got %d windows, want 1", len(got))
	}
	if got[0].Start.Weekday() != time.Wednesday {
		t.Errorf("window on %s, want Wednesday", got[0].Start.Weekday())
	}
}

func TestExpandWeeklyEmptySchedule(t *testing.T) {
	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	if got := expandWeekly(nil, from, from.AddDate(0, 0, 7)); len(got) != 0 {
		t.Errorf("got %d windows, want 0", len(got))
	}
}
