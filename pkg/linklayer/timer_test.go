package linklayer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerExpiresAfterTimeout(t *testing.T) {
	timer := NewTimer(20*time.Millisecond, 3)
	timer.Arm()
	assert.False(t, timer.Expired())
	time.Sleep(40 * time.Millisecond)
	assert.True(t, timer.Expired())
}

func TestTimerDisarmClearsExpired(t *testing.T) {
	timer := NewTimer(10*time.Millisecond, 3)
	timer.Arm()
	time.Sleep(30 * time.Millisecond)
	assert.True(t, timer.Expired())
	timer.Disarm()
	assert.False(t, timer.Expired())
}

func TestTimerRetryBudget(t *testing.T) {
	timer := NewTimer(time.Millisecond, 2)
	timer.Reset()
	assert.True(t, timer.NextRetry())  // 1st retry, count=1 <= 2
	assert.True(t, timer.NextRetry())  // 2nd retry, count=2 <= 2
	assert.False(t, timer.NextRetry()) // 3rd retry, count=3 > 2: exhausted
}
