package domain

import (
	"fmt"
	"time"
)

// TimeLayout is the wire grammar for every timestamp: UTC with millisecond
// precision and a literal Z suffix.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Window of the synthesized contest 0, and the far-future sentinel used by
// the submission_time tie-breaker for users without submissions.
const (
	RootContestFrom  = "1022-08-27T02:05:29.000Z"
	RootContestTo    = "3022-08-27T02:05:30.000Z"
	NoSubmissionTime = "4022-08-27T02:05:29.000Z"
)

// Timestamp is a UTC instant that marshals to and from TimeLayout.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to the wire precision in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{t.UTC().Truncate(time.Millisecond)}
}

// ParseTimestamp parses the wire grammar strictly.
func ParseTimestamp(s string) (Timestamp, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return Timestamp{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return Timestamp{t.UTC()}, nil
}

// MustTimestamp parses a known-good literal; it panics on malformed input
// and is reserved for package-level constants.
func MustTimestamp(s string) Timestamp {
	ts, err := ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return ts
}

// String renders the wire form.
func (ts Timestamp) String() string {
	return ts.UTC().Format(TimeLayout)
}

// MarshalJSON renders the wire form as a JSON string.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + ts.String() + `"`), nil
}

// UnmarshalJSON accepts only the wire grammar.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("timestamp must be a JSON string: %s", string(b))
	}
	parsed, err := ParseTimestamp(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*ts = parsed
	return nil
}
