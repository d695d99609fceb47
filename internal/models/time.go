package models

import (
	"bytes"
	"strconv"
	"time"
)

// Millis is a UTC timestamp that serializes as integer milliseconds since
// the Unix epoch. All persisted records use this representation; day
// partitioning is derived from the UTC calendar day.
type Millis struct {
	time.Time
}

// NewMillis wraps a time.Time, truncating to millisecond precision in UTC.
func NewMillis(t time.Time) Millis {
	return Millis{t.UTC().Truncate(time.Millisecond)}
}

// Now returns the current time as Millis.
func Now() Millis {
	return NewMillis(time.Now())
}

// MarshalJSON encodes the timestamp as epoch milliseconds. The zero time
// encodes as 0.
func (m Millis) MarshalJSON() ([]byte, error) {
	if m.Time.IsZero() {
		return []byte("0"), nil
	}
	return strconv.AppendInt(nil, m.Time.UnixMilli(), 10), nil
}

// UnmarshalJSON decodes epoch milliseconds. 0 decodes to the zero time.
func (m *Millis) UnmarshalJSON(data []byte) error {
	ms, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64)
	if err != nil {
		return err
	}
	if ms == 0 {
		m.Time = time.Time{}
		return nil
	}
	m.Time = time.UnixMilli(ms).UTC()
	return nil
}

// DayKey returns the UTC calendar day used for date-partitioned files.
func (m Millis) DayKey() string {
	return m.Time.UTC().Format(DayLayout)
}

// DayLayout is the file partition layout for all persisted day files.
const DayLayout = "2006-01-02"
