package storage

import (
	"time"

	"github.com/dromara/carbon/v2"
)

// FormatTimestamp renders t as a "YYYY-MM-DD HH:MM:SS" string. The
// storage backends do not call it: SQL rows (native timestamps) and
// Redis (Unix seconds) both hydrate into time.Time values.
func FormatTimestamp(t time.Time) string {
	return carbon.CreateFromStdTime(t).ToDateTimeString()
}

// ParseTimestamp is the inverse of FormatTimestamp. No storage adapter
// calls it; the Redis adapter hydrates its Unix-second fields with
// time.Unix.
func ParseTimestamp(s string) (time.Time, error) {
	c := carbon.Parse(s)
	if c.Error != nil {
		return time.Time{}, c.Error
	}
	return c.StdTime(), nil
}

// UnixToTimestampString converts a Redis-stored Unix-second value
// straight to the shared wire format without an intermediate
// time.Time round-trip through a particular location.
func UnixToTimestampString(unixSeconds int64) string {
	return carbon.CreateFromTimestamp(unixSeconds).ToDateTimeString()
}
