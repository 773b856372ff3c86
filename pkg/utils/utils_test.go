package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupTrimsTrailingSlash(t *testing.T) {
	got := Dedup([]string{"http://a/", "http://a", "http://b"})
	assert.Equal(t, []string{"http://a", "http://b"}, got)
}

func TestParseDuration(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, ParseDuration("1500ms", time.Second))
	assert.Equal(t, 10*time.Second, ParseDuration("10", time.Second))
	assert.Equal(t, time.Second, ParseDuration("nope", time.Second))
	assert.Equal(t, time.Second, ParseDuration("", time.Second))
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"A", "B"}, SplitList(" A, ,B ,"))
	assert.Empty(t, SplitList(""))
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 33.3, Round1(100.0/3))
	assert.Equal(t, 66.7, Round1(200.0/3))
	assert.Equal(t, 0.0, Round1(0))
}

func TestParseBool(t *testing.T) {
	for _, v := range []string{"1", "TRUE", "yes", " on "} {
		assert.True(t, ParseBool(v), v)
	}
	assert.False(t, ParseBool("0"))
	assert.False(t, ParseBool("off"))
}
