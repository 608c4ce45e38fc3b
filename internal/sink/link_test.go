package sink

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledmatrix/internal/timeutil"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

const waitFor = 2 * time.Second

func newClock() *timeutil.MockClock { return timeutil.NewMockClock(epoch) }

func newTestMock(t *testing.T, opts ...Option) (*Mock, *timeutil.MockClock) {
	t.Helper()
	clock := newClock()
	m := NewMock("mock", append([]Option{WithClock(clock)}, opts...)...)
	t.Cleanup(m.Disconnect)
	return m, clock
}

func TestMock_HealthWindow(t *testing.T) {
	m, clock := newTestMock(t)
	assert.False(t, m.IsHealthy(0), "never connected")
	assert.Equal(t, Disconnected, m.State())

	require.NoError(t, m.Connect(context.Background()))
	assert.True(t, m.IsHealthy(0), "a fresh link starts healthy")
	assert.Equal(t, Connected, m.State())

	clock.Advance(4 * time.Second)
	m.Send([]byte{1})
	require.Eventually(t, func() bool { return m.Stats().Sent == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, epoch.Add(4*time.Second), m.Stats().LastWrite)

	clock.Advance(4900 * time.Millisecond)
	assert.True(t, m.IsHealthy(5*time.Second))

	clock.Advance(200 * time.Millisecond)
	assert.False(t, m.IsHealthy(5*time.Second))
	assert.Equal(t, Unhealthy, m.State())
	assert.True(t, m.IsHealthy(10*time.Second), "health is relative to the caller's window")
}

func TestMock_StateUsesMaxAge(t *testing.T) {
	m, clock := newTestMock(t, WithMaxAge(time.Second))
	require.NoError(t, m.Connect(context.Background()))

	clock.Advance(900 * time.Millisecond)
	assert.Equal(t, Connected, m.State())
	clock.Advance(100 * time.Millisecond)
	assert.Equal(t, Unhealthy, m.State())

	m.Send([]byte{1})
	require.Eventually(t, func() bool { return m.State() == Connected }, waitFor, time.Millisecond)
}

func TestMock_FailedWriteDoesNotRefreshHealth(t *testing.T) {
	m, clock := newTestMock(t)
	require.NoError(t, m.Connect(context.Background()))

	m.SetWriteErr(ErrMockDown)
	clock.Advance(3 * time.Second)
	m.Send([]byte{1, 2, 3})
	require.Eventually(t, func() bool { return m.Stats().Failed == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, epoch, m.Stats().LastWrite)
	assert.Empty(t, m.Packets())

	clock.Advance(2 * time.Second)
	assert.False(t, m.IsHealthy(0))
}

func TestMock_SendWhileDisconnectedDrops(t *testing.T) {
	m, _ := newTestMock(t)
	m.Send([]byte{1})
	assert.Equal(t, uint64(1), m.Stats().Dropped)
	assert.Empty(t, m.Packets())
}

func TestMock_QueueFullDrops(t *testing.T) {
	m, _ := newTestMock(t, WithQueueDepth(1))
	block := make(chan struct{})
	m.Block = block
	require.NoError(t, m.Connect(context.Background()))

	for i := 0; i < 4; i++ {
		m.Send([]byte{byte(i)})
	}
	assert.GreaterOrEqual(t, m.Stats().Dropped, uint64(2))
	close(block)

	want := 4 - int(m.Stats().Dropped)
	require.Eventually(t, func() bool { return len(m.Packets()) == want }, waitFor, time.Millisecond)
	assert.Equal(t, []byte{0}, m.Packets()[0], "oldest frame is kept")
}

func TestMock_ConnectFailure(t *testing.T) {
	m, _ := newTestMock(t)
	m.SetConnectErr(ErrMockDown)

	err := m.Connect(context.Background())
	var ce *ConnectionError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "mock", ce.Sink)
	assert.ErrorIs(t, err, ErrMockDown)
	assert.Equal(t, Disconnected, m.State())

	m.SetConnectErr(nil)
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, Connected, m.State())
	assert.Equal(t, 2, m.Connects())
}

func TestMock_ConnectCancelled(t *testing.T) {
	m, _ := newTestMock(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Connect(ctx), context.Canceled)
}

func TestMock_ConnectIsIdempotent(t *testing.T) {
	m, _ := newTestMock(t)
	require.NoError(t, m.Connect(context.Background()))
	require.NoError(t, m.Connect(context.Background()))
	assert.Equal(t, 1, m.Connects())
}

func TestMock_DisconnectIsIdempotent(t *testing.T) {
	m, _ := newTestMock(t)
	m.Disconnect()
	require.NoError(t, m.Connect(context.Background()))
	m.Disconnect()
	m.Disconnect()
	assert.Equal(t, Disconnected, m.State())
	assert.False(t, m.IsHealthy(time.Hour))

	// reconnect after a teardown starts a fresh writer
	require.NoError(t, m.Connect(context.Background()))
	m.Send([]byte{9})
	require.Eventually(t, func() bool { return len(m.Packets()) == 1 }, waitFor, time.Millisecond)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "connecting", Connecting.String())
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "unhealthy", Unhealthy.String())
	assert.Equal(t, "state(9)", State(9).String())
}

func TestErrors(t *testing.T) {
	ce := &ConnectionError{Sink: "a", Err: ErrMockDown}
	assert.Equal(t, "sink a: connect: mock sink down", ce.Error())
	we := &WriteError{Sink: "b", Err: ErrMockDown}
	assert.Equal(t, "sink b: write: mock sink down", we.Error())
	assert.ErrorIs(t, we, ErrMockDown)
}
