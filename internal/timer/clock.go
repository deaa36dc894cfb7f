package timer

import "github.com/jonboulle/clockwork"

// Clock creates the tickers timers run on. Tests pass clockwork's fake clock.
type Clock = clockwork.Clock

// RealClock is backed by the runtime timers.
var RealClock Clock = clockwork.NewRealClock()
