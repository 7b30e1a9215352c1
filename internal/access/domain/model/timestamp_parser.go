package model

import (
	"regexp"
	"time"
)

// TimestampParser reads back the ISO strings stored in account events and
// the instants stored in "$standard".
type TimestampParser struct{}

// NewTimestampParser creates a new TimestampParser
func NewTimestampParser() *TimestampParser {
	return &TimestampParser{}
}

// Accepted layouts, most likely first.
var supportedTimestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var timestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d{1,9})?(?:Z|[+-]\d{2}:?\d{2})$`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}$`),
	regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
}

// IsTimestampString reports whether s looks like one of the accepted layouts.
func (tp *TimestampParser) IsTimestampString(s string) bool {
	if len(s) < 10 || len(s) > 35 {
		return false
	}
	for _, pattern := range timestampPatterns {
		if pattern.MatchString(s) {
			return true
		}
	}
	return false
}

// ParseTimestamp parses s with the first layout that fits.
func (tp *TimestampParser) ParseTimestamp(s string) (time.Time, error) {
	for _, format := range supportedTimestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &TimestampParseError{Input: s}
}

// TimestampParseError represents a timestamp parsing error
type TimestampParseError struct {
	Input string
}

func (e *TimestampParseError) Error() string {
	return "cannot parse '" + e.Input + "' as timestamp"
}

// Coerce turns a date, a store timestamp or an ISO string into a time.
func (tp *TimestampParser) Coerce(v Value) (time.Time, bool) {
	switch v.Kind() {
	case KindDate:
		return v.t, true
	case KindTimestamp:
		return v.ts.Time(), true
	case KindString:
		if !tp.IsTimestampString(v.s) {
			return time.Time{}, false
		}
		t, err := tp.ParseTimestamp(v.s)
		return t, err == nil
	}
	return time.Time{}, false
}
