package util

import (
	"strconv"
	"time"
)

// epoch milliseconds start above this value; anything smaller is seconds.
const msThreshold = 1e11

// ParseTime accepts RFC3339, RFC3339Nano and unix seconds or milliseconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return UnixAuto(ts), true
	}
	return time.Time{}, false
}

// ParseTimeDefault parses time or returns default if empty/invalid.
func ParseTimeDefault(s string, def time.Time) time.Time {
	if t, ok := ParseTime(s); ok {
		return t
	}
	return def
}

// UnixAuto converts an epoch stamp that may be in seconds or milliseconds.
func UnixAuto(ts int64) time.Time {
	if ts > msThreshold {
		return time.UnixMilli(ts)
	}
	return time.Unix(ts, 0)
}

// MinutesUntil returns whole minutes from now to t, rounded down.
func MinutesUntil(now, t time.Time) int {
	return int(t.Sub(now) / time.Minute)
}
