package circuit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker("deepseek", 3, time.Minute)
	assert.True(t, b.Allow())

	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker("deepseek", 3, time.Minute)
	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()

	// 计数清零，还得再连错三次才开
	b.RecordFailure()
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenProbe(t *testing.T) {
	b := NewBreaker("deepseek", 1, 10*time.Millisecond)
	b.RecordFailure()
	assert.False(t, b.Allow())

	time.Sleep(15 * time.Millisecond)
	// 冷却结束后放一次探针
	assert.True(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	// 探针失败立刻回到 OPEN
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(15 * time.Millisecond)
	assert.True(t, b.Allow())
	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.True(t, b.Allow())
}

func TestBreaker_DefaultsApplied(t *testing.T) {
	b := NewBreaker("x", 0, 0)
	assert.Equal(t, 3, b.threshold)
	assert.Equal(t, time.Minute, b.cooldown)
}
