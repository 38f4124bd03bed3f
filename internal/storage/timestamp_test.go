package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatTimestamp_ProducesDateTimeString(t *testing.T) {
	ts := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "2026-03-05 14:30:00", FormatTimestamp(ts))
}

func TestParseTimestamp_RoundTripsWithFormat(t *testing.T) {
	ts := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	formatted := FormatTimestamp(ts)

	parsed, err := ParseTimestamp(formatted)
	require.NoError(t, err)
	assert.Equal(t, formatted, FormatTimestamp(parsed))
}

func TestParseTimestamp_InvalidStringErrors(t *testing.T) {
	_, err := ParseTimestamp("not-a-timestamp")
	assert.Error(t, err)
}

func TestUnixToTimestampString_MatchesFormatTimestamp(t *testing.T) {
	ts := time.Date(2026, 3, 5, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, FormatTimestamp(ts), UnixToTimestampString(ts.Unix()))
}
