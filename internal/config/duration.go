package config

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidISODuration is returned when a string does not match the
// ISO-8601 duration grammar this package supports.
var ErrInvalidISODuration = errors.New("config: invalid ISO-8601 duration")

// isoDurationPattern matches the date/time portions of ISO-8601 durations
// this package supports: PnYnMnDTnHnMnS, any component optional, at least
// one required. Fractional components are not supported (not needed by
// MERGED_PR_LIFETIME / TEST_RUN_LIFETIME, spec.md §6).
var isoDurationPattern = regexp.MustCompile(
	`^P(?:(\d+)Y)?(?:(\d+)M)?(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`,
)

const (
	hoursPerDay  = 24
	daysPerMonth = 30 // calendar approximation; retention windows, not calendar scheduling
	daysPerYear  = 365
)

// ParseISODuration parses an ISO-8601 duration literal (e.g. "P90D",
// "P1Y6M", "PT12H") into a time.Duration. Years and months are approximated
// as 365 and 30 days respectively — acceptable for the retention-horizon
// use this package serves (spec.md §9: durations must not leak local time
// zones into retention math; this parser is zone-agnostic by construction,
// operating purely on elapsed time).
//
// There is no ISO-8601 duration parser in the standard library or anywhere
// in the retrieved example pack (time.ParseDuration only understands Go's
// own "300ms"/"-1.5h" grammar) — this is a justified stdlib-only
// implementation; see DESIGN.md.
func ParseISODuration(s string) (time.Duration, error) {
	matches := isoDurationPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidISODuration, s)
	}

	var allEmpty = true

	for _, m := range matches[1:] {
		if m != "" {
			allEmpty = false
			break
		}
	}

	if allEmpty {
		return 0, fmt.Errorf("%w: %q has no components", ErrInvalidISODuration, s)
	}

	years := mustInt(matches[1])
	months := mustInt(matches[2])
	days := mustInt(matches[3])
	hours := mustInt(matches[4])
	minutes := mustInt(matches[5])
	seconds := mustInt(matches[6])

	totalDays := years*daysPerYear + months*daysPerMonth + days

	d := time.Duration(totalDays) * hoursPerDay * time.Hour
	d += time.Duration(hours) * time.Hour
	d += time.Duration(minutes) * time.Minute
	d += time.Duration(seconds) * time.Second

	return d, nil
}

// mustInt converts a regexp submatch to an int, treating "" as 0 (the
// submatch is empty exactly when that component was absent from the input,
// which the pattern already guarantees contains only digits when present).
func mustInt(s string) int {
	if s == "" {
		return 0
	}

	v, _ := strconv.Atoi(s)

	return v
}

// GetEnvISODurationOrDefault returns an ISO-8601 duration environment
// variable or a default if not set or unparseable. Unlike GetEnvISODuration
// (getter.go), an unparseable value is not reported as an error.
func GetEnvISODurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := GetEnvStr(key, "")
	if value == "" {
		return defaultValue
	}

	d, err := ParseISODuration(value)
	if err != nil {
		return defaultValue
	}

	return d
}
