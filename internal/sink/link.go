package sink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledmatrix/internal/timeutil"
)

// link is the state machine and writer goroutine shared by every sink.
type link struct {
	name   string
	clock  timeutil.Clock
	depth  int
	maxAge time.Duration
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	lastWrite time.Time
	queue     chan []byte
	quit      chan struct{}
	wg        sync.WaitGroup

	sent    atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

func newLink(name string, s settings) *link {
	return &link{
		name:   name,
		clock:  s.clock,
		depth:  s.depth,
		maxAge: s.maxAge,
		log:    log.With().Str("sink", name).Logger(),
	}
}

// begin moves a disconnected link to Connecting. It reports false when the
// link is already up or another connect is in flight.
func (l *link) begin() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Disconnected {
		return false
	}
	l.state = Connecting
	return true
}

// fail returns a Connecting link to Disconnected.
func (l *link) fail() {
	l.mu.Lock()
	if l.state == Connecting {
		l.state = Disconnected
	}
	l.mu.Unlock()
}

// up marks the link connected and starts the writer. It reports false if
// the link was torn down while connecting; the caller then owns cleanup.
func (l *link) up(write func([]byte) error) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Connecting {
		return false
	}
	l.state = Connected
	l.lastWrite = l.clock.Now()
	l.queue = make(chan []byte, l.depth)
	l.quit = make(chan struct{})
	l.wg.Add(1)
	go l.run(l.queue, l.quit, write)
	l.log.Info().Msg("connected")
	return true
}

// down stops the writer and runs closer. closer runs before the writer is
// joined so it can unblock a write stuck on the device.
func (l *link) down(closer func()) {
	l.mu.Lock()
	quit := l.quit
	was := l.state
	l.state = Disconnected
	l.quit = nil
	l.queue = nil
	l.mu.Unlock()

	if quit == nil {
		return
	}
	close(quit)
	if closer != nil {
		closer()
	}
	l.wg.Wait()
	if was != Disconnected {
		l.log.Info().Msg("disconnected")
	}
}

func (l *link) run(queue <-chan []byte, quit <-chan struct{}, write func([]byte) error) {
	defer l.wg.Done()
	for {
		select {
		case <-quit:
			return
		case pkt := <-queue:
			if err := write(pkt); err != nil {
				l.failed.Add(1)
				l.log.Warn().Err(&WriteError{Sink: l.name, Err: err}).Int("bytes", len(pkt)).Msg("write failed")
				continue
			}
			l.mu.Lock()
			l.lastWrite = l.clock.Now()
			l.mu.Unlock()
			l.sent.Add(1)
		}
	}
}

func (l *link) send(pkt []byte) {
	l.mu.Lock()
	state, queue := l.state, l.queue
	l.mu.Unlock()

	if state != Connected {
		l.dropped.Add(1)
		l.log.Debug().Str("state", state.String()).Msg("not connected, frame dropped")
		return
	}
	select {
	case queue <- pkt:
	default:
		l.dropped.Add(1)
		l.log.Debug().Int("bytes", len(pkt)).Msg("queue full, frame dropped")
	}
}

func (l *link) healthy(maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == Connected && l.clock.Since(l.lastWrite) < maxAge
}

// current is the link state, with Connected reported as Unhealthy once the
// last write is older than the configured max age.
func (l *link) current() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state == Connected && l.clock.Since(l.lastWrite) >= l.maxAge {
		return Unhealthy
	}
	return l.state
}

func (l *link) stats() Stats {
	l.mu.Lock()
	last := l.lastWrite
	l.mu.Unlock()
	return Stats{
		Sent:      l.sent.Load(),
		Dropped:   l.dropped.Load(),
		Failed:    l.failed.Load(),
		LastWrite: last,
	}
}
