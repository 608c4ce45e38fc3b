// Package transport fans framed packets out to a set of sinks and tracks
// their aggregate health.
package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/coreman2200/ledmatrix/internal/packet"
	"github.com/coreman2200/ledmatrix/internal/sink"
)

// SinkStatus is a point-in-time view of one sink.
type SinkStatus struct {
	Name      string    `json:"name"`
	State     string    `json:"state"`
	Healthy   bool      `json:"healthy"`
	Sent      uint64    `json:"sent"`
	Dropped   uint64    `json:"dropped"`
	Failed    uint64    `json:"failed"`
	LastWrite time.Time `json:"last_write"`
}

// Transport owns a set of sinks. One mutex serialises send cycles against
// connect, disconnect and sink-set changes, so at most one frame is in
// dispatch at a time.
type Transport struct {
	mu     sync.Mutex
	sinks  []sink.Sink
	maxAge time.Duration
	frames uint64
}

// New builds a transport. maxAge <= 0 selects sink.DefaultMaxAge.
func New(maxAge time.Duration, sinks ...sink.Sink) *Transport {
	if maxAge <= 0 {
		maxAge = sink.DefaultMaxAge
	}
	return &Transport{sinks: append([]sink.Sink(nil), sinks...), maxAge: maxAge}
}

func (t *Transport) Add(s sink.Sink) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sinks = append(t.sinks, s)
}

func (t *Transport) Sinks() []sink.Sink {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]sink.Sink(nil), t.sinks...)
}

func (t *Transport) MaxAge() time.Duration { return t.maxAge }

// Frames is the number of packets broadcast so far.
func (t *Transport) Frames() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.frames
}

// Connect brings up every sink. A failing sink does not stop the others;
// all failures are joined into the returned error.
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	for _, s := range t.sinks {
		if err := s.Connect(ctx); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("connect failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Send broadcasts one packet to every sink and returns without waiting for
// delivery. Nothing is retried.
func (t *Transport) Send(pkt []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.frames++
	if e := log.Debug(); e.Enabled() {
		n := len(pkt) - packet.Overhead
		var sum byte
		if n >= 0 {
			sum = pkt[len(pkt)-1]
		}
		e.Uint64("frame", t.frames).Int("bytes", n).Uint8("checksum", sum).Msg("send")
	}
	for _, s := range t.sinks {
		s.Send(pkt)
	}
}

// Disconnect tears down every sink. Safe to call repeatedly.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sinks {
		s.Disconnect()
	}
}

// IsHealthy reports whether every sink wrote successfully within the
// configured max age. A transport with no sinks is healthy.
func (t *Transport) IsHealthy() bool {
	return t.IsHealthyAge(t.maxAge)
}

func (t *Transport) IsHealthyAge(maxAge time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sinks {
		if !s.IsHealthy(maxAge) {
			return false
		}
	}
	return true
}

// Recover reconnects every unhealthy sink. Healthy sinks are left alone.
func (t *Transport) Recover(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var errs []error
	for _, s := range t.sinks {
		if s.IsHealthy(t.maxAge) {
			continue
		}
		log.Info().Str("sink", s.Name()).Str("state", s.State().String()).Msg("recovering sink")
		s.Disconnect()
		if err := s.Connect(ctx); err != nil {
			log.Warn().Err(err).Str("sink", s.Name()).Msg("recover failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Transport) Status() []SinkStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SinkStatus, 0, len(t.sinks))
	for _, s := range t.sinks {
		state, healthy := s.State(), s.IsHealthy(t.maxAge)
		if state == sink.Connected && !healthy {
			state = sink.Unhealthy
		}
		st := SinkStatus{
			Name:    s.Name(),
			State:   state.String(),
			Healthy: healthy,
		}
		if r, ok := s.(sink.StatsReporter); ok {
			stats := r.Stats()
			st.Sent, st.Dropped, st.Failed, st.LastWrite = stats.Sent, stats.Dropped, stats.Failed, stats.LastWrite
		}
		out = append(out, st)
	}
	return out
}
