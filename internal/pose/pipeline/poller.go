package pipeline

import (
	"sync"
	"time"

	"github.com/banshee-data/physio.track/internal/timeutil"
)

// DefaultPollInterval is the metrics refresh cadence of the host UI.
const DefaultPollInterval = 100 * time.Millisecond

// Poller reads a metrics source on a fixed cadence and hands each snapshot
// to a sink. Stop returns only after the loop has exited, so no snapshot is
// delivered after Stop. Sinks must not call Stop.
type Poller struct {
	clock    timeutil.Clock
	interval time.Duration
	source   func() SessionMetrics
	sink     func(SessionMetrics)

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewPoller returns a stopped Poller.
func NewPoller(clock timeutil.Clock, interval time.Duration, source func() SessionMetrics, sink func(SessionMetrics)) *Poller {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &Poller{clock: clock, interval: interval, source: source, sink: sink}
}

// Start launches the polling loop. Starting a running poller is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	ticker := p.clock.NewTicker(p.interval)
	go p.loop(ticker, p.stop, p.done)
}

// Stop halts the loop and waits for it. A snapshot read but not yet
// delivered when Stop is called is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.stop)
	done := p.done
	p.mu.Unlock()
	<-done
}

// Running reports whether the loop is active.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *Poller) loop(ticker timeutil.Ticker, stop, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C():
			m := p.source()
			select {
			case <-stop:
				return
			default:
			}
			if p.sink != nil {
				p.sink(m)
			}
		}
	}
}
