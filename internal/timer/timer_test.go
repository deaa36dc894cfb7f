package timer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const wait = time.Second

type fakeClock interface {
	Clock
	Advance(d time.Duration)
	BlockUntilContext(ctx context.Context, n int) error
}

// waiters blocks until exactly n tickers are registered on the clock.
func waiters(t *testing.T, clock fakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, n), "want %d live tickers", n)
}

func recv(t *testing.T, ch <-chan int) int {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(wait):
		t.Fatal("no tick")
		return 0
	}
}

func TestTimerTicksAndCompletesOnce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan int, 10)
	completed := make(chan struct{}, 2)

	tm := Start(clock, 3, "Preparation Time", func(r int) { ticks <- r }, func() { completed <- struct{}{} })
	waiters(t, clock, 1)

	var got []int
	for i := 0; i < 3; i++ {
		clock.Advance(time.Second)
		got = append(got, recv(t, ticks))
	}
	<-tm.Done()

	assert.Equal(t, []int{2, 1, 0}, got)
	assert.Len(t, completed, 1)
	assert.False(t, tm.Running())
	assert.Equal(t, "Preparation Time", tm.Label())
	waiters(t, clock, 0)
}

func TestTimerStopPreventsCompletion(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ticks := make(chan int, 10)
	var mu sync.Mutex
	completed := false

	tm := Start(clock, 5, "Answering Time", func(r int) { ticks <- r }, func() {
		mu.Lock()
		completed = true
		mu.Unlock()
	})
	for i := 0; i < 2; i++ {
		clock.Advance(time.Second)
		recv(t, ticks)
	}

	tm.Stop()
	tm.Stop()
	waiters(t, clock, 0)
	<-tm.Done()

	clock.Advance(time.Second)
	mu.Lock()
	assert.False(t, completed)
	mu.Unlock()
	assert.Equal(t, 3, tm.Remaining())
	assert.Empty(t, ticks)
}

func TestTimerZeroDurationCompletesImmediately(t *testing.T) {
	clock := clockwork.NewFakeClock()
	done := make(chan struct{}, 1)
	tm := Start(clock, 0, "now", nil, func() { done <- struct{}{} })
	<-tm.Done()
	assert.Len(t, done, 1)
	waiters(t, clock, 0)
}

func TestSlotKeepsOneTimerUnderRapidRestarts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	slot := NewSlot(clock)

	var timers []*Timer
	for i := 0; i < 20; i++ {
		timers = append(timers, slot.Start(60, "Essay", nil, nil))
	}
	waiters(t, clock, 1)

	for _, tm := range timers[:len(timers)-1] {
		select {
		case <-tm.Done():
		case <-time.After(wait):
			t.Fatalf("timer %d leaked", tm.ID())
		}
	}

	live := 0
	for _, tm := range timers {
		if tm.Running() {
			live++
		}
	}
	assert.Equal(t, 1, live)
	assert.Same(t, timers[len(timers)-1], slot.Active())

	slot.Stop()
	waiters(t, clock, 0)
	<-timers[len(timers)-1].Done()
	assert.Nil(t, slot.Active())
}
