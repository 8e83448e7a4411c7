package ingestkafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceRateLimiter_AllowsBurstThenThrottles(t *testing.T) {
	rl := NewSourceRateLimiter(1)
	defer rl.Close()

	allowed := 0

	for i := 0; i < 10; i++ {
		if rl.Allow("circleci") {
			allowed++
		}
	}

	assert.Less(t, allowed, 10)
	assert.Greater(t, allowed, 0)
}

func TestSourceRateLimiter_TracksSourcesIndependently(t *testing.T) {
	rl := NewSourceRateLimiter(1)
	defer rl.Close()

	for i := 0; i < 2; i++ {
		assert.True(t, rl.Allow("appveyor"))
	}

	assert.True(t, rl.Allow("circleci"))
}

func TestSourceRateLimiter_CloseIsIdempotent(t *testing.T) {
	rl := NewSourceRateLimiter(5)
	rl.Close()
	assert.NotPanics(t, func() { rl.Close() })
}
