package sink

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Mock is an in-memory sink. It records every packet its writer accepts and
// can be scripted to fail connects or writes.
type Mock struct {
	name string
	link *link

	mu         sync.Mutex
	packets    [][]byte
	connects   int
	ConnectErr error
	WriteErr   error
	// Block, when set, holds every write until it is closed.
	Block chan struct{}
}

// ErrMockDown is a convenience failure for scripted mocks.
var ErrMockDown = errors.New("mock sink down")

func NewMock(name string, opts ...Option) *Mock {
	if name == "" {
		name = "mock"
	}
	return &Mock{name: name, link: newLink(name, newSettings(opts))}
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) Connect(ctx context.Context) error {
	if !m.link.begin() {
		return nil
	}
	m.mu.Lock()
	m.connects++
	err := m.ConnectErr
	m.mu.Unlock()
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		m.link.fail()
		return &ConnectionError{Sink: m.name, Err: err}
	}
	if !m.link.up(m.write) {
		return &ConnectionError{Sink: m.name, Err: ErrAborted}
	}
	return nil
}

func (m *Mock) write(b []byte) error {
	m.mu.Lock()
	block := m.Block
	m.mu.Unlock()
	if block != nil {
		<-block
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.packets = append(m.packets, append([]byte(nil), b...))
	return nil
}

func (m *Mock) Send(packet []byte) { m.link.send(packet) }

func (m *Mock) Disconnect() { m.link.down(nil) }

func (m *Mock) IsHealthy(maxAge time.Duration) bool { return m.link.healthy(maxAge) }

func (m *Mock) State() State { return m.link.current() }

func (m *Mock) Stats() Stats { return m.link.stats() }

// SetWriteErr scripts the result of subsequent writes.
func (m *Mock) SetWriteErr(err error) {
	m.mu.Lock()
	m.WriteErr = err
	m.mu.Unlock()
}

// SetConnectErr scripts the result of subsequent connects.
func (m *Mock) SetConnectErr(err error) {
	m.mu.Lock()
	m.ConnectErr = err
	m.mu.Unlock()
}

// Packets returns copies of the packets written so far.
func (m *Mock) Packets() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.packets))
	copy(out, m.packets)
	return out
}

// Connects counts Connect attempts that reached the device.
func (m *Mock) Connects() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connects
}
