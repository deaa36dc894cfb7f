package timer

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
)

var seq atomic.Uint64

// Timer is one countdown ticking once per second. It calls onTick with the
// remaining seconds after every tick and onComplete exactly once when the
// count reaches zero, then stops itself. Its ticker is released before
// onComplete runs and before Stop returns.
type Timer struct {
	id        uint64
	label     string
	remaining atomic.Int64
	ticker    clockwork.Ticker

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func Start(clock Clock, seconds int, label string, onTick func(remaining int), onComplete func()) *Timer {
	t := &Timer{
		id:    seq.Add(1),
		label: label,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	t.remaining.Store(int64(seconds))
	if seconds > 0 {
		t.ticker = clock.NewTicker(time.Second)
	}
	go t.run(onTick, onComplete)
	return t
}

func (t *Timer) run(onTick func(int), onComplete func()) {
	defer close(t.done)

	if t.ticker == nil {
		if !t.stopped() && onComplete != nil {
			onComplete()
		}
		return
	}
	defer t.ticker.Stop()

	for {
		select {
		case <-t.stop:
			return
		case <-t.ticker.Chan():
			left := int(t.remaining.Add(-1))
			if t.stopped() {
				return
			}
			if onTick != nil {
				onTick(left)
			}
			if left <= 0 {
				t.ticker.Stop()
				if !t.stopped() && onComplete != nil {
					onComplete()
				}
				return
			}
		}
	}
}

func (t *Timer) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// Stop cancels the timer. It is safe to call more than once and after the
// timer has completed.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
		if t.ticker != nil {
			t.ticker.Stop()
		}
	})
}

// Done is closed once the timer goroutine has exited.
func (t *Timer) Done() <-chan struct{} { return t.done }

func (t *Timer) ID() uint64     { return t.id }
func (t *Timer) Label() string  { return t.label }
func (t *Timer) Remaining() int { return int(t.remaining.Load()) }

func (t *Timer) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return !t.stopped()
	}
}

// Slot holds at most one live timer. Starting a timer stops the previous one.
type Slot struct {
	mu      sync.Mutex
	clock   Clock
	current *Timer
}

func NewSlot(clock Clock) *Slot {
	if clock == nil {
		clock = RealClock
	}
	return &Slot{clock: clock}
}

func (s *Slot) Start(seconds int, label string, onTick func(remaining int), onComplete func()) *Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Stop()
	}
	s.current = Start(s.clock, seconds, label, onTick, onComplete)
	return s.current
}

func (s *Slot) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current.Stop()
		s.current = nil
	}
}

// Active returns the running timer, or nil.
func (s *Slot) Active() *Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil && s.current.Running() {
		return s.current
	}
	return nil
}
