package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDelayStaysInWindow(t *testing.T) {
	p := NewPacer(100*time.Millisecond, 250*time.Millisecond)

	for i := 0; i < 100; i++ {
		d := p.Delay()
		assert.GreaterOrEqual(t, d, 100*time.Millisecond)
		assert.Less(t, d, 250*time.Millisecond)
	}
}

func TestDegenerateWindowIsFixedDelay(t *testing.T) {
	p := NewPacer(50*time.Millisecond, 50*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, p.Delay())

	// Ceiling below floor clamps to floor.
	p = NewPacer(50*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 50*time.Millisecond, p.Delay())
}

func TestNegativeFloorClampsToZero(t *testing.T) {
	p := NewPacer(-time.Second, -time.Second)
	assert.Equal(t, time.Duration(0), p.Delay())
}

func TestWaitSleeps(t *testing.T) {
	p := NewPacer(10*time.Millisecond, 20*time.Millisecond)

	start := time.Now()
	assert.NoError(t, p.Wait(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}

func TestWaitObservesCancellation(t *testing.T) {
	p := NewPacer(time.Hour, 2*time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Wait(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Wait did not observe cancellation")
	}
}
