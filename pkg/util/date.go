package util

import "time"

// UnixMillis returns t as epoch milliseconds, the wire format for realtime frames.
func UnixMillis(t time.Time) int64 {
	return t.UnixMilli()
}
