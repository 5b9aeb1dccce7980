package timeutil

import (
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestParseDurationOrDefault(t *testing.T) {
	assert.Equal(t, ParseDurationOrDefault("", time.Second), time.Second)
	assert.Equal(t, ParseDurationOrDefault("soon", time.Second), time.Second)
	assert.Equal(t, ParseDurationOrDefault("-1s", time.Second), time.Second)
	assert.Equal(t, ParseDurationOrDefault(" 250ms ", time.Second), 250*time.Millisecond)
}

func TestParseOptional(t *testing.T) {
	d, err := ParseOptional("")
	assert.NilError(t, err)
	assert.Equal(t, d, time.Duration(0))

	_, err = ParseOptional("-5m")
	assert.ErrorContains(t, err, "negative")

	_, err = ParseOptional("5 minutes")
	assert.Assert(t, err != nil)
}
