package drilldown

import (
	"fmt"
	"strings"
	"time"
)

// Preset is a named relative date window.
type Preset string

const (
	PresetLast30Days  Preset = "30d"
	PresetLast90Days  Preset = "90d"
	PresetYearToDate  Preset = "ytd"
	PresetCustomRange Preset = "custom"
)

var presetLabels = map[Preset]string{
	PresetLast30Days:  "Last 30 days",
	PresetLast90Days:  "Last 90 days",
	PresetYearToDate:  "Year to date",
	PresetCustomRange: "Custom range",
}

// Presets lists the relative windows offered to users, in display order.
func Presets() []Preset {
	return []Preset{PresetLast30Days, PresetLast90Days, PresetYearToDate}
}

// ParsePreset accepts the preset identifiers case-insensitively.
func ParsePreset(raw string) (Preset, error) {
	p := Preset(strings.ToLower(strings.TrimSpace(raw)))
	switch p {
	case PresetLast30Days, PresetLast90Days, PresetYearToDate, PresetCustomRange:
		return p, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPreset, raw)
}

// Label returns the human label of the preset.
func (p Preset) Label() string {
	if label, ok := presetLabels[p]; ok {
		return label
	}
	return string(p)
}

// Resolve turns the preset into a concrete range ending on now's calendar day.
func (p Preset) Resolve(now time.Time) (DateRange, error) {
	end := truncateDay(now)
	switch p {
	case PresetLast30Days:
		return DateRange{Start: end.AddDate(0, 0, -29), End: end}, nil
	case PresetLast90Days:
		return DateRange{Start: end.AddDate(0, 0, -89), End: end}, nil
	case PresetYearToDate:
		return DateRange{Start: time.Date(end.Year(), time.January, 1, 0, 0, 0, 0, end.Location()), End: end}, nil
	}
	return DateRange{}, fmt.Errorf("%w: %q", ErrUnknownPreset, string(p))
}

// DefaultSelection is the state a new dashboard view starts from: the most
// recent 30 days and no drill-down.
func DefaultSelection(now time.Time) Selection {
	rng, _ := PresetLast30Days.Resolve(now)
	return Selection{Range: rng, Preset: PresetLast30Days}
}

// Describe formats a range for display, e.g. "02 Jan 2025 - 31 Jan 2025".
func Describe(rng DateRange) string {
	const layout = "02 Jan 2006"
	return rng.Start.Format(layout) + " - " + rng.End.Format(layout)
}
