package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledmatrix/internal/packet"
	"github.com/coreman2200/ledmatrix/internal/sink"
)

func TestBridgeForwardsValidPackets(t *testing.T) {
	var stream bytes.Buffer
	a, err := packet.Frame([]byte{1, 2, 3})
	require.NoError(t, err)
	b, err := packet.Frame([]byte{4, 5, 6})
	require.NoError(t, err)
	corrupt := append([]byte(nil), a...)
	corrupt[len(corrupt)-1]++

	stream.Write([]byte{0x42})
	stream.Write(a)
	stream.Write(corrupt)
	stream.Write(b)

	m := sink.NewMock("mock")
	require.NoError(t, m.Connect(context.Background()))
	defer m.Disconnect()

	r := packet.NewReader(&stream)
	require.NoError(t, bridge(context.Background(), r, m, 3))
	require.Eventually(t, func() bool { return len(m.Packets()) == 2 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, a, m.Packets()[0])
	assert.Equal(t, b, m.Packets()[1])
	assert.Equal(t, 1, r.Corrupt)
}
