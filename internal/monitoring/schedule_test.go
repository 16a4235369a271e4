package monitoring

import (
	"testing"
	"time"

	"watchtower/internal/database"
)

func businessHoursEvaluator() *ScheduleEvaluator {
	return NewScheduleEvaluator(database.WindowConfig{
		StartTime: "09:00",
		EndTime:   "17:00",
		Weekdays:  []int{1, 2, 3, 4, 5},
		Timezone:  "UTC",
	})
}

func TestAlwaysScheduleIsAlwaysInside(t *testing.T) {
	e := businessHoursEvaluator()
	w := e.Evaluate(database.ScheduleAlways, nil, time.Date(2024, 3, 9, 3, 0, 0, 0, time.UTC))
	if !w.Inside {
		t.Error("always schedule should be inside at any instant")
	}
}

func TestBusinessHoursInside(t *testing.T) {
	e := businessHoursEvaluator()
	// Monday 2024-03-04 10:30 UTC.
	ref := time.Date(2024, 3, 4, 10, 30, 0, 0, time.UTC)
	w := e.Evaluate(database.ScheduleBusinessHours, nil, ref)
	if !w.Inside {
		t.Fatal("expected inside business hours")
	}
	if w.Start == nil {
		t.Fatal("expected window start")
	}
	wantStart := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	if !w.Start.Equal(wantStart) {
		t.Errorf("expected window start %v, got %v", wantStart, *w.Start)
	}
}

func TestBusinessHoursOutsideHours(t *testing.T) {
	e := businessHoursEvaluator()
	// Monday 18:30, after close.
	ref := time.Date(2024, 3, 4, 18, 30, 0, 0, time.UTC)
	if w := e.Evaluate(database.ScheduleBusinessHours, nil, ref); w.Inside {
		t.Error("expected outside after end time")
	}
}

func TestBusinessHoursWeekendIsOutside(t *testing.T) {
	e := businessHoursEvaluator()
	// Saturday 10:30, inside hours but inactive day.
	ref := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)
	if w := e.Evaluate(database.ScheduleBusinessHours, nil, ref); w.Inside {
		t.Error("expected outside on saturday")
	}
}

func TestBusinessHoursBoundariesInclusive(t *testing.T) {
	e := businessHoursEvaluator()
	open := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	closeT := time.Date(2024, 3, 4, 17, 0, 59, 0, time.UTC)
	if w := e.Evaluate(database.ScheduleBusinessHours, nil, open); !w.Inside {
		t.Error("expected inside at opening minute")
	}
	if w := e.Evaluate(database.ScheduleBusinessHours, nil, closeT); !w.Inside {
		t.Error("expected inside at closing minute")
	}
}

func TestOvernightWindowWraps(t *testing.T) {
	e := NewScheduleEvaluator(database.WindowConfig{})
	cfg := &database.WindowConfig{
		StartTime: "22:00",
		EndTime:   "06:00",
		Weekdays:  []int{1, 2, 3, 4, 5, 6, 7},
		Timezone:  "UTC",
	}

	late := time.Date(2024, 3, 4, 23, 30, 0, 0, time.UTC)
	if w := e.Evaluate(database.ScheduleBusinessHours, cfg, late); !w.Inside {
		t.Error("expected inside at 23:30 for 22:00-06:00 window")
	}

	early := time.Date(2024, 3, 5, 4, 0, 0, 0, time.UTC)
	if w := e.Evaluate(database.ScheduleBusinessHours, cfg, early); !w.Inside {
		t.Error("expected inside at 04:00 for 22:00-06:00 window")
	}

	midday := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	if w := e.Evaluate(database.ScheduleBusinessHours, cfg, midday); w.Inside {
		t.Error("expected outside at noon for 22:00-06:00 window")
	}
}

func TestHostWindowOverridesDefaults(t *testing.T) {
	e := businessHoursEvaluator()
	cfg := &database.WindowConfig{
		StartTime: "00:00",
		EndTime:   "23:59",
		Weekdays:  []int{6, 7},
		Timezone:  "UTC",
	}
	// Saturday: inactive under defaults, active under the override.
	ref := time.Date(2024, 3, 9, 10, 30, 0, 0, time.UTC)
	if w := e.Evaluate(database.ScheduleBusinessHours, cfg, ref); !w.Inside {
		t.Error("expected host window override to apply")
	}
}

func TestWindowStartSkipsInactiveDays(t *testing.T) {
	e := NewScheduleEvaluator(database.WindowConfig{})
	cfg := &database.WindowConfig{
		StartTime: "09:00",
		EndTime:   "17:00",
		Weekdays:  []int{1}, // Mondays only
		Timezone:  "UTC",
	}
	// Monday 2024-03-11 09:30; previous active day is the 4th but the
	// current window opened today.
	ref := time.Date(2024, 3, 11, 9, 30, 0, 0, time.UTC)
	w := e.Evaluate(database.ScheduleBusinessHours, cfg, ref)
	if !w.Inside || w.Start == nil {
		t.Fatalf("expected inside with start, got %+v", w)
	}
	wantStart := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	if !w.Start.Equal(wantStart) {
		t.Errorf("expected start %v, got %v", wantStart, *w.Start)
	}
}

func TestInvalidTimezoneFailsOpen(t *testing.T) {
	e := NewScheduleEvaluator(database.WindowConfig{
		StartTime: "09:00",
		EndTime:   "17:00",
		Weekdays:  []int{1, 2, 3, 4, 5},
		Timezone:  "Not/AZone",
	})
	ref := time.Date(2024, 3, 9, 3, 0, 0, 0, time.UTC)
	if w := e.Evaluate(database.ScheduleBusinessHours, nil, ref); !w.Inside {
		t.Error("unresolvable timezone should fail open")
	}
}

func TestTimezoneConversion(t *testing.T) {
	e := NewScheduleEvaluator(database.WindowConfig{
		StartTime: "09:00",
		EndTime:   "17:00",
		Weekdays:  []int{1, 2, 3, 4, 5},
		Timezone:  "America/New_York",
	})
	// 13:00 UTC on a Monday in March (EST, UTC-5) is 08:00 local:
	// before opening.
	ref := time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC)
	if w := e.Evaluate(database.ScheduleBusinessHours, nil, ref); w.Inside {
		t.Error("expected outside: 08:00 local is before opening")
	}
	// 15:00 UTC is 10:00 local: inside.
	ref = time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC)
	if w := e.Evaluate(database.ScheduleBusinessHours, nil, ref); !w.Inside {
		t.Error("expected inside: 10:00 local")
	}
}
