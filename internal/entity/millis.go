package entity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// Millis is a timestamp in epoch milliseconds. It always serializes as a
// JSON integer but accepts the representations seen on the wire:
//
//	1718000000000                                  epoch millis
//	"1718000000000"                                numeric string
//	"2024-06-10T06:13:20Z"                         RFC 3339 string
//	{"seconds": 1718000000, "nanoseconds": 0}     timestamp object
//	{"_seconds": 1718000000, "_nanoseconds": 0}   serialized timestamp object
//	{"millis": 1718000000000}                      object with a millis field
//
// null decodes to zero.
type Millis int64

// MillisOf converts t to epoch milliseconds
func MillisOf(t time.Time) Millis {
	return Millis(t.UnixMilli())
}

// Time converts m back to a time.Time
func (m Millis) Time() time.Time {
	return time.UnixMilli(int64(m))
}

// IsZero reports whether the timestamp is unset
func (m Millis) IsZero() bool {
	return m == 0
}

type timestampObject struct {
	Seconds      *float64 `json:"seconds"`
	Nanoseconds  *float64 `json:"nanoseconds"`
	USeconds     *float64 `json:"_seconds"`
	UNanoseconds *float64 `json:"_nanoseconds"`
	Millis       *float64 `json:"millis"`
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Millis) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*m = 0
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := parseMillisString(s)
		if err != nil {
			return err
		}
		*m = v
		return nil
	case '{':
		var obj timestampObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return fmt.Errorf("invalid timestamp object: %w", err)
		}
		v, err := obj.millis()
		if err != nil {
			return err
		}
		*m = v
		return nil
	default:
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", string(data), err)
		}
		v, err := millisFromFloat(f)
		if err != nil {
			return err
		}
		*m = v
		return nil
	}
}

// millisFromFloat truncates f, rejecting values outside the int64 range
func millisFromFloat(f float64) (Millis, error) {
	if math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("timestamp %g out of range", f)
	}
	return Millis(int64(f)), nil
}

func (o timestampObject) millis() (Millis, error) {
	if o.Millis != nil {
		return millisFromFloat(*o.Millis)
	}
	secs, nanos := o.Seconds, o.Nanoseconds
	if secs == nil {
		secs, nanos = o.USeconds, o.UNanoseconds
	}
	if secs == nil {
		return 0, fmt.Errorf("timestamp object has no seconds or millis field")
	}
	ms := math.Trunc(*secs) * 1000
	if nanos != nil {
		ms += math.Trunc(*nanos / float64(time.Millisecond))
	}
	return millisFromFloat(ms)
}

func parseMillisString(s string) (Millis, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Millis(n), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}
	return MillisOf(t), nil
}
