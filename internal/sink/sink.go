// Package sink delivers framed packets to LED controllers and their
// stand-ins. Every sink owns a writer goroutine fed by a short queue, so
// Send never blocks the render loop; link health is judged solely by the
// time of the last successful write.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coreman2200/ledmatrix/internal/timeutil"
)

// DefaultMaxAge is the health window used when a caller passes maxAge <= 0.
const DefaultMaxAge = 5 * time.Second

// DefaultQueueDepth bounds the frames waiting on a slow link.
const DefaultQueueDepth = 2

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Unhealthy
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Unhealthy:
		return "unhealthy"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sink is one delivery endpoint for packets.
type Sink interface {
	Name() string
	// Connect blocks until the link is up. Failures are *ConnectionError.
	// Connecting a connected sink is a no-op.
	Connect(ctx context.Context) error
	// Send queues packet for the writer and returns at once. The packet must
	// not be modified afterwards.
	Send(packet []byte)
	// Disconnect tears the link down. Safe to call repeatedly.
	Disconnect()
	IsHealthy(maxAge time.Duration) bool
	State() State
}

// Stats are the link counters exposed for logs and health endpoints.
type Stats struct {
	Sent      uint64
	Dropped   uint64
	Failed    uint64
	LastWrite time.Time
}

// StatsReporter is implemented by every sink in this package.
type StatsReporter interface {
	Stats() Stats
}

// ErrAborted is wrapped in the ConnectionError returned when Disconnect runs
// while Connect is still opening the device.
var ErrAborted = errors.New("disconnected while connecting")

type ConnectionError struct {
	Sink string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("sink %s: connect: %v", e.Sink, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

type WriteError struct {
	Sink string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("sink %s: write: %v", e.Sink, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

type settings struct {
	clock  timeutil.Clock
	depth  int
	maxAge time.Duration
}

// Option tunes a sink at construction.
type Option func(*settings)

// WithClock replaces the wall clock used for health checks.
func WithClock(c timeutil.Clock) Option {
	return func(s *settings) { s.clock = c }
}

// WithQueueDepth sets how many packets may wait for the writer.
func WithQueueDepth(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.depth = n
		}
	}
}

// WithMaxAge sets the write age after which State reports Unhealthy.
func WithMaxAge(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

func newSettings(opts []Option) settings {
	s := settings{clock: timeutil.RealClock{}, depth: DefaultQueueDepth, maxAge: DefaultMaxAge}
	for _, o := range opts {
		o(&s)
	}
	return s
}
