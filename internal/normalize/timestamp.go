package normalize

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// webkitEpochOffset is the number of microseconds between 1601-01-01 (the
// epoch of Chromium's internal history timestamps) and 1970-01-01.
const webkitEpochOffset = 11644473600000000

// Layouts carrying their own zone or offset.
var zonedLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05 -0700",
	"2006-01-02 15:04:05 -0700 MST",
	time.RFC1123Z,
	time.RFC1123,
}

// Layouts without a zone; they are read as UTC.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"1/2/2006, 3:04:05 PM",
	"1/2/2006 3:04:05 PM",
	"1/2/2006, 3:04 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006, 15:04:05",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"Jan 2, 2006, 3:04:05 PM",
	"Jan 2, 2006 at 3:04:05 PM",
	"January 2, 2006 at 3:04:05 PM",
}

// ParseTimestamp converts a raw export timestamp into UTC at second
// precision. Numbers (and digit-only strings) are epoch values whose unit is
// picked by magnitude: WebKit microseconds, Unix microseconds, Unix
// milliseconds or Unix seconds.
func ParseTimestamp(v any) (time.Time, error) {
	var t time.Time
	var err error

	switch x := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("missing timestamp")
	case time.Time:
		t = x
	case json.Number:
		t, err = parseNumeric(string(x))
	case float64:
		t, err = fromEpochFloat(x)
	case int64:
		t, err = fromEpoch(x)
	case int:
		t, err = fromEpoch(int64(x))
	case string:
		t, err = parseString(x)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp value %v (%T)", v, v)
	}
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Second), nil
}

func parseString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if isNumeric(s) {
		return parseNumeric(s)
	}
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse timestamp %q", s)
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	dots := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return dots <= 1 && s != "."
}

func parseNumeric(s string) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return fromEpoch(n)
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("unable to parse timestamp %q", s)
	}
	return fromEpochFloat(f)
}

func fromEpochFloat(f float64) (time.Time, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f > math.MaxInt64 {
		return time.Time{}, fmt.Errorf("timestamp %v out of range", f)
	}
	return fromEpoch(int64(f))
}

func fromEpoch(n int64) (time.Time, error) {
	if n <= 0 {
		return time.Time{}, fmt.Errorf("timestamp %d out of range", n)
	}
	switch {
	case n > 1e16:
		return time.UnixMicro(n - webkitEpochOffset), nil
	case n > 1e14:
		return time.UnixMicro(n), nil
	case n > 1e11:
		return time.UnixMilli(n), nil
	default:
		return time.Unix(n, 0), nil
	}
}
