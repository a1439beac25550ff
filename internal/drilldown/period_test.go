package drilldown

import (
	"errors"
	"testing"
	"time"
	_ "time/tzdata"
)

func TestPresetResolve(t *testing.T) {
	now := time.Date(2025, 3, 15, 17, 45, 0, 0, time.UTC)
	day := func(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

	cases := []struct {
		preset Preset
		start  time.Time
		days   int
	}{
		{PresetLast30Days, day(2025, 2, 14), 30},
		{PresetLast90Days, day(2024, 12, 16), 90},
		{PresetYearToDate, day(2025, 1, 1), 74},
	}
	for _, tc := range cases {
		rng, err := tc.preset.Resolve(now)
		if err != nil {
			t.Fatalf("%s: %v", tc.preset, err)
		}
		if !rng.Start.Equal(tc.start) {
			t.Fatalf("%s: expected start %s got %s", tc.preset, tc.start, rng.Start)
		}
		if !rng.End.Equal(day(2025, 3, 15)) {
			t.Fatalf("%s: expected end truncated to the day, got %s", tc.preset, rng.End)
		}
		if rng.Days() != tc.days {
			t.Fatalf("%s: expected %d days got %d", tc.preset, tc.days, rng.Days())
		}
	}
}

func TestDaysAcrossDaylightSavingShift(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	cases := []struct {
		name string
		rng  DateRange
		days int
	}{
		{"spring forward", DateRange{Start: time.Date(2025, 3, 1, 0, 0, 0, 0, berlin), End: time.Date(2025, 3, 31, 0, 0, 0, 0, berlin)}, 31},
		{"fall back", DateRange{Start: time.Date(2025, 10, 1, 0, 0, 0, 0, berlin), End: time.Date(2025, 10, 31, 23, 0, 0, 0, berlin)}, 31},
		{"single day", DateRange{Start: time.Date(2025, 3, 30, 0, 0, 0, 0, berlin), End: time.Date(2025, 3, 30, 22, 0, 0, 0, berlin)}, 1},
		{"inverted", DateRange{Start: time.Date(2025, 3, 2, 0, 0, 0, 0, berlin), End: time.Date(2025, 3, 1, 0, 0, 0, 0, berlin)}, 0},
	}
	for _, tc := range cases {
		if got := tc.rng.Days(); got != tc.days {
			t.Fatalf("%s: expected %d days got %d", tc.name, tc.days, got)
		}
	}
}

func TestPresetResolveUnknown(t *testing.T) {
	if _, err := Preset("7d").Resolve(time.Now()); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("expected ErrUnknownPreset, got %v", err)
	}
	if _, err := PresetCustomRange.Resolve(time.Now()); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("custom range cannot be resolved, got %v", err)
	}
}

func TestParsePreset(t *testing.T) {
	p, err := ParsePreset(" YTD ")
	if err != nil || p != PresetYearToDate {
		t.Fatalf("expected ytd, got %q %v", p, err)
	}
	if _, err := ParsePreset("weekly"); !errors.Is(err, ErrUnknownPreset) {
		t.Fatalf("expected ErrUnknownPreset, got %v", err)
	}
}

func TestDefaultSelection(t *testing.T) {
	sel := DefaultSelection(time.Date(2025, 1, 30, 9, 0, 0, 0, time.UTC))
	if sel.Preset != PresetLast30Days || sel.Depth() != DepthRoot {
		t.Fatalf("unexpected default selection %#v", sel)
	}
	if sel.Range.Days() != 30 {
		t.Fatalf("expected 30 day window got %d", sel.Range.Days())
	}
	if Describe(sel.Range) != "01 Jan 2025 - 30 Jan 2025" {
		t.Fatalf("unexpected description %q", Describe(sel.Range))
	}
}

func TestSelectionValidate(t *testing.T) {
	rng := DateRange{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC)}
	if err := (Selection{Range: rng, VendorID: ID(3)}).Validate(); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("vendor without branch must be rejected, got %v", err)
	}
	if err := (Selection{Range: rng, BranchID: ID(1), ProductID: ID(3)}).Validate(); !errors.Is(err, ErrInvalidSelection) {
		t.Fatalf("product without vendor must be rejected, got %v", err)
	}
	if err := (Selection{Range: DateRange{Start: rng.End, End: rng.Start}}).Validate(); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("inverted range must be rejected, got %v", err)
	}
	if err := (Selection{Range: rng, BranchID: ID(1), VendorID: ID(2), ProductID: ID(3)}).Validate(); err != nil {
		t.Fatalf("unexpected error %v", err)
	}
}
