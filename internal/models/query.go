package models

import (
	"fmt"
	"strings"
	"time"
)

var looseTimeLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02"}

// ParseLooseTime accepts RFC3339 timestamps, zone-less datetimes and plain
// dates. Values without a zone are read as UTC.
func ParseLooseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	for _, layout := range looseTimeLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}

// QueryTime is a query-string timestamp bound through ParseLooseTime.
// An empty parameter binds to the zero time, which filters treat as unset.
type QueryTime struct {
	time.Time
}

// UnmarshalParam implements gin's binding.BindUnmarshaler.
func (q *QueryTime) UnmarshalParam(param string) error {
	if strings.TrimSpace(param) == "" {
		q.Time = time.Time{}
		return nil
	}
	ts, ok := ParseLooseTime(param)
	if !ok {
		return fmt.Errorf("invalid date %q", param)
	}
	q.Time = ts
	return nil
}

// Set reports whether q carries a usable bound.
func (q *QueryTime) Set() bool {
	return q != nil && !q.IsZero()
}
