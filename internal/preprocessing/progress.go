package preprocessing

import (
	"sync"

	"goprep/ports"
)

const (
	progressStarted  = 10
	progressService  = 95
	progressComplete = 100
)

// progressGuard forwards percentages to a sink, clamped to [0,100] and never
// decreasing. After close it drops everything, so late transport callbacks
// cannot reach the caller once Submit has returned.
type progressGuard struct {
	mu     sync.Mutex
	sink   ports.ProgressFunc
	last   int
	closed bool
}

func newProgressGuard(sink ports.ProgressFunc) *progressGuard {
	return &progressGuard{sink: sink, last: -1}
}

func (g *progressGuard) report(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > progressComplete {
		percent = progressComplete
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed || g.sink == nil || percent <= g.last {
		return
	}
	g.last = percent
	g.sink(percent)
}

// service maps the execution service's own 0..100 progress into the band
// between the start report and completion.
func (g *progressGuard) service(percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > progressComplete {
		percent = progressComplete
	}
	g.report(progressStarted + percent*(progressService-progressStarted)/progressComplete)
}

func (g *progressGuard) close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
}
