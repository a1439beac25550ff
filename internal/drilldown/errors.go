package drilldown

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRange is returned when a date range starts after it ends.
	ErrInvalidRange = errors.New("drilldown: invalid date range")
	// ErrInvalidSelection is returned when a selection skips a parent level or
	// names an entity absent from the loaded data.
	ErrInvalidSelection = errors.New("drilldown: invalid selection")
	// ErrUnknownPreset is returned for an unrecognised period preset.
	ErrUnknownPreset = errors.New("drilldown: unknown period preset")
)

// FetchError attributes a provider failure to the level whose fetch failed.
type FetchError struct {
	Level Level
	Err   error
}

func (e *FetchError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("drilldown: fetch %s: %v", e.Level, e.Err)
}

func (e *FetchError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
