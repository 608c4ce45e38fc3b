package sink

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"github.com/coreman2200/ledmatrix/internal/packet"
)

// fakePort captures writes and can be scripted to fail.
type fakePort struct {
	mu       sync.Mutex
	written  bytes.Buffer
	writeErr error
	closed   bool
}

func (p *fakePort) Read(b []byte) (int, error) { return 0, errors.New("not readable") }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, errors.New("port closed")
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	return p.written.Write(b)
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) Bytes() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.written.Bytes()...)
}

func (p *fakePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func TestSerial_WritesPackets(t *testing.T) {
	port := &fakePort{}
	var gotPath string
	var gotMode *serial.Mode
	s := NewSerial("", SerialConfig{
		Path: "/dev/ttyACM0",
		Opener: func(path string, mode *serial.Mode) (Port, error) {
			gotPath, gotMode = path, mode
			return port, nil
		},
	})
	assert.Equal(t, "serial:/dev/ttyACM0", s.Name())

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, "/dev/ttyACM0", gotPath)
	require.NotNil(t, gotMode)
	assert.Equal(t, 115200, gotMode.BaudRate)
	assert.Equal(t, 8, gotMode.DataBits)
	assert.Equal(t, serial.NoParity, gotMode.Parity)
	assert.Equal(t, serial.OneStopBit, gotMode.StopBits)

	raw, err := packet.Frame([]byte{10, 20, 30})
	require.NoError(t, err)
	s.Send(raw)
	require.Eventually(t, func() bool { return bytes.Equal(raw, port.Bytes()) }, waitFor, time.Millisecond)
	assert.True(t, s.IsHealthy(0))

	s.Disconnect()
	assert.True(t, port.Closed())
	assert.Equal(t, Disconnected, s.State())
	s.Disconnect()
}

func TestSerial_WriteFailureCounts(t *testing.T) {
	clock := newClock()
	port := &fakePort{writeErr: errors.New("EIO")}
	s := NewSerial("s", SerialConfig{
		Path:   "/dev/null",
		Opener: func(string, *serial.Mode) (Port, error) { return port, nil },
	}, WithClock(clock))
	require.NoError(t, s.Connect(context.Background()))
	defer s.Disconnect()

	s.Send([]byte{0xFF, 0xAA, 0, 0, 0})
	require.Eventually(t, func() bool { return s.Stats().Failed == 1 }, waitFor, time.Millisecond)
	clock.Advance(DefaultMaxAge)
	assert.False(t, s.IsHealthy(0))
	assert.Equal(t, Unhealthy, s.State())
}

func TestSerial_OpenFailure(t *testing.T) {
	s := NewSerial("s", SerialConfig{
		Path:   "/dev/missing",
		Opener: func(string, *serial.Mode) (Port, error) { return nil, errors.New("no such device") },
	})
	err := s.Connect(context.Background())
	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "s", ce.Sink)
	assert.Equal(t, Disconnected, s.State())
}

func TestSerial_BadOptions(t *testing.T) {
	s := NewSerial("s", SerialConfig{Path: "/dev/x", Options: PortOptions{DataBits: 9}})
	var ce *ConnectionError
	require.ErrorAs(t, s.Connect(context.Background()), &ce)
}

func TestSerial_ConnectHonoursContext(t *testing.T) {
	release := make(chan struct{})
	port := &fakePort{}
	s := NewSerial("s", SerialConfig{
		Path: "/dev/slow",
		Opener: func(string, *serial.Mode) (Port, error) {
			<-release
			return port, nil
		},
	})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Connect(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, Disconnected, s.State())

	// the late port is closed rather than leaked
	close(release)
	require.Eventually(t, port.Closed, waitFor, time.Millisecond)
}

func TestSerial_DisconnectDuringConnect(t *testing.T) {
	port := &fakePort{}
	opening := make(chan struct{})
	release := make(chan struct{})
	s := NewSerial("slow", SerialConfig{
		Path: "/dev/ttyACM0",
		Opener: func(string, *serial.Mode) (Port, error) {
			close(opening)
			<-release
			return port, nil
		},
	})

	errc := make(chan error, 1)
	go func() { errc <- s.Connect(context.Background()) }()
	<-opening
	s.Disconnect()
	close(release)

	err := <-errc
	var ce *ConnectionError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "slow", ce.Sink)
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, Disconnected, s.State())
	assert.True(t, port.Closed(), "the port opened after Disconnect is closed")
}

func TestPortOptions_Normalize(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, got)

	got, err = PortOptions{BaudRate: 9600, Parity: " even ", StopBits: 2}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, "E", got.Parity)

	for _, bad := range []PortOptions{{DataBits: 4}, {StopBits: 3}, {Parity: "mark"}} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 57600, DataBits: 7, StopBits: 2, Parity: "O"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, &serial.Mode{BaudRate: 57600, DataBits: 7, StopBits: serial.TwoStopBits, Parity: serial.OddParity}, mode)
}
