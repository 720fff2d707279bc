// Package timeutil normalizes the ISO-8601 date strings used by the API.
// Request dates may be absent, null, naive, or carry an offset; responses
// always render with an explicit numeric offset.
package timeutil

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidDate marks a date string that is present but not parseable.
// Callers use it to tell "malformed" apart from "absent", which parses to nil.
var ErrInvalidDate = errors.New("invalid date format")

// layouts accepted on input. Fractional seconds are matched implicitly by
// time.Parse, so only the offset and precision variants are listed.
var layouts = []string{
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Parse converts an ISO-8601 string to a timestamp. An empty string yields
// (nil, nil). A trailing 'Z' is treated as the +00:00 offset. Timestamps
// without an offset are taken as UTC. Anything unparseable yields
// ErrInvalidDate.
func Parse(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	// a space separator is tolerated, as in the common SQL rendering
	if len(s) > 10 && s[10] == ' ' {
		s = s[:10] + "T" + s[11:]
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, ErrInvalidDate
}

// Format renders a timestamp as an ISO-8601 string with a numeric offset,
// e.g. 2024-01-01T00:00:00+00:00. A nil input stays nil so optional dates
// serialize as JSON null.
func Format(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format("2006-01-02T15:04:05-07:00")
	return &s
}
