// Package daterange turns loose date references found in user questions
// ("hoy", "last monday", "del 10-02-2024 al 28-02-2024") into epoch
// millisecond bounds of whole calendar days.
package daterange

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

const dayMillis = int64(24 * time.Hour / time.Millisecond)

// Bounds is an inclusive [StartMs, EndMs] window in epoch milliseconds.
type Bounds struct {
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`
}

// Reference is a date expression extracted from free text. End is empty for
// single-day references.
type Reference struct {
	Start string
	End   string
}

func (r Reference) IsRange() bool {
	return r.End != ""
}

type DateParseError struct {
	Reference string
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("could not parse date reference %q", e.Reference)
}

var (
	todayWords     = map[string]struct{}{"today": {}, "hoy": {}}
	yesterdayWords = map[string]struct{}{"yesterday": {}, "ayer": {}}

	weekdays = map[string]time.Weekday{
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
		"sunday":    time.Sunday,
		"lunes":     time.Monday,
		"martes":    time.Tuesday,
		"miércoles": time.Wednesday,
		"miercoles": time.Wednesday,
		"jueves":    time.Thursday,
		"viernes":   time.Friday,
		"sábado":    time.Saturday,
		"sabado":    time.Saturday,
		"domingo":   time.Sunday,
	}

	weekdayPattern = regexp.MustCompile(`(?:last|pasado|pasada)\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday|lunes|martes|miércoles|miercoles|jueves|viernes|sábado|sabado|domingo)`)

	// DD/MM/YYYY, MM/DD/YYYY, YYYY-MM-DD, DD-MM-YYYY, tried in that order.
	dateLayouts = []string{"2/1/2006", "1/2/2006", "2006-1-2", "2-1-2006"}
)

// ResolveDay resolves a single date reference relative to now and returns the
// bounds of that calendar day in now's location.
func ResolveDay(reference string, now time.Time) (Bounds, error) {
	day, err := resolveDate(reference, now)
	if err != nil {
		return Bounds{}, err
	}
	return dayBounds(day), nil
}

func resolveDate(reference string, now time.Time) (time.Time, error) {
	today := midnight(now)
	normalized := strings.ToLower(strings.TrimSpace(reference))

	if _, ok := todayWords[normalized]; ok {
		return today, nil
	}
	if _, ok := yesterdayWords[normalized]; ok {
		return today.AddDate(0, 0, -1), nil
	}
	if match := weekdayPattern.FindStringSubmatch(normalized); match != nil {
		target := weekdays[match[1]]
		diff := (int(today.Weekday()) - int(target) + 7) % 7
		if diff == 0 {
			diff = 7
		}
		return today.AddDate(0, 0, -diff), nil
	}
	for _, layout := range dateLayouts {
		parsed, err := time.ParseInLocation(layout, normalized, now.Location())
		if err == nil {
			return midnight(parsed), nil
		}
	}
	return time.Time{}, &DateParseError{Reference: reference}
}

func midnight(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

func dayBounds(day time.Time) Bounds {
	start := day.UnixMilli()
	return Bounds{StartMs: start, EndMs: start + dayMillis - 1}
}

// Resolver resolves references against a clock and recovers from
// unparseable ones by falling back to today.
type Resolver struct {
	Logger *slog.Logger
	Now    func() time.Time
	// OnFallback, when set, is called each time a reference falls back to today.
	OnFallback func(reference string)
}

func NewResolver(logger *slog.Logger, location *time.Location) *Resolver {
	if location == nil {
		location = time.Local
	}
	return &Resolver{
		Logger: logger,
		Now:    func() time.Time { return time.Now().In(location) },
	}
}

func (r *Resolver) now() time.Time {
	if r == nil || r.Now == nil {
		return time.Now()
	}
	return r.Now()
}

// Day resolves a single reference, defaulting to today when it cannot be parsed.
func (r *Resolver) Day(reference string) Bounds {
	now := r.now()
	bounds, err := ResolveDay(reference, now)
	if err == nil {
		return bounds
	}
	if r != nil && r.Logger != nil {
		r.Logger.Warn("date reference not understood, using today",
			slog.String("reference", reference),
			slog.Any("error", err),
		)
	}
	if r != nil && r.OnFallback != nil {
		r.OnFallback(reference)
	}
	return dayBounds(midnight(now))
}

// Resolve turns a reference into bounds; a range takes the start of its first
// day and the end of its last day, each resolved independently.
func (r *Resolver) Resolve(ref Reference) Bounds {
	if !ref.IsRange() {
		return r.Day(ref.Start)
	}
	start := r.Day(ref.Start)
	end := r.Day(ref.End)
	return Bounds{StartMs: start.StartMs, EndMs: end.EndMs}
}
