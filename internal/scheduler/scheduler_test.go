package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30s", 30 * time.Second, true},
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"4H", 4 * time.Hour, true},
		{" 1d ", 24 * time.Hour, true},
		{"", 0, false},
		{"h", 0, false},
		{"0s", 0, false},
		{"-5m", 0, false},
		{"1w", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseIntervalDuration(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestCycleScheduler_TaskFalseStops(t *testing.T) {
	s := NewCycleScheduler(context.Background(), time.Millisecond)
	runs := 0
	done := make(chan struct{})
	go func() {
		s.Start(func() bool {
			runs++
			return runs < 3
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after task returned false")
	}
	assert.Equal(t, 3, runs)
}

func TestCycleScheduler_ContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewCycleScheduler(ctx, 50*time.Millisecond)

	done := make(chan struct{})
	go func() {
		s.Start(func() bool {
			cancel()
			return true
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after context cancel")
	}
}

func TestCycleScheduler_InvalidIntervalNoRun(t *testing.T) {
	s := NewCycleScheduler(context.Background(), 0)
	ran := false
	s.Start(func() bool {
		ran = true
		return false
	})
	assert.False(t, ran)
}
