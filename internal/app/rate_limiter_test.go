package app

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterWindow(t *testing.T) {
	clk := clock.NewMock()
	rl := NewRateLimiter(clk, 2, time.Second)

	assert.True(t, rl.Allow("ann"))
	assert.True(t, rl.Allow("ann"))
	assert.False(t, rl.Allow("ann"))
	assert.True(t, rl.Allow("bob"))

	clk.Add(1100 * time.Millisecond)
	assert.True(t, rl.Allow("ann"))

	clk.Add(5 * time.Second)
	rl.Forget()
	rl.mu.Lock()
	assert.Empty(t, rl.history)
	rl.mu.Unlock()
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter(clock.NewMock(), 0, time.Second)
	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("ann"))
	}
}
