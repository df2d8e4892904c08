package hours

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

var guiLocation *time.Location = time.UTC

func SetGuiTimezone(timezone string) error {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return fmt.Errorf("failed to load timezone %s: %v", timezone, err)
	}
	guiLocation = loc
	return nil
}

// Epoch values at or above this are taken to be milliseconds. The cutoff
// (Sat Mar 03 5138 in seconds, Sun Mar 04 1973 in milliseconds) is far
// outside any forecast horizon either way.
const epochMillisCutoff = 1e11

var isoLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Parse converts a raw provider timestamp into UTC. Accepted forms are
// ISO-8601 strings, epoch seconds, epoch milliseconds and native time
// values. The boolean is false for anything unparseable.
func Parse(value any) (time.Time, bool) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		if v.IsZero() {
			return time.Time{}, false
		}
		return v.UTC(), true
	case string:
		return parseIso(v)
	case float64:
		return fromEpoch(v)
	case float32:
		return fromEpoch(float64(v))
	case int:
		return fromEpoch(float64(v))
	case int64:
		return fromEpoch(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return fromEpoch(f)
	default:
		return time.Time{}, false
	}
}

func parseIso(str string) (time.Time, bool) {
	if str == "" {
		return time.Time{}, false
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, str); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

func fromEpoch(v float64) (time.Time, bool) {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}, false
	}
	if v >= epochMillisCutoff {
		return time.UnixMilli(int64(v)).UTC(), true
	}
	sec, frac := math.Modf(v)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), true
}

func DurationHours(start, end time.Time) float64 {
	return end.Sub(start).Hours()
}

func FormatTimeInGuiTimezone(t time.Time) string {
	return t.In(guiLocation).Format("2006-01-02 15:04:05")
}
