package audioports

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/wclaphost/pkg/arena"
	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/guest/guesttest"
	"github.com/justyntemme/wclaphost/pkg/xptr"
)

func xptr32(off uint32) xptr.Pointer[uint32] {
	return xptr.Pointer[uint32]{Offset: off}
}

const (
	fnCount = iota + 1
	fnGet
)

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func bindFake(t *testing.T, g *guesttest.Instance) *Extension {
	t.Helper()
	extPtr, err := g.Malloc(context.Background(), 8)
	require.NoError(t, err)
	l := clapdefs.AudioPortsExtLayout
	require.NoError(t, g.Write(context.Background(), extPtr+l.Count, u32le(fnCount)))
	require.NoError(t, g.Write(context.Background(), extPtr+l.Get, u32le(fnGet)))
	ext, err := Bind(context.Background(), g, 100, extPtr)
	require.NoError(t, err)
	return ext
}

func newScope(g *guesttest.Instance, size uint32) *arena.Scoped {
	a := &arena.Arena{Base: g.Bump, Size: size}
	g.Bump += size
	return a.Scope()
}

// twoStereoPorts fakes a plug-in with two stereo ports on whichever side
// is queried.
func twoStereoPorts(g *guesttest.Instance) {
	g.CallFunc = func(ctx context.Context, fn uint32, args []guest.TaggedValue) (guest.TaggedValue, error) {
		switch fn {
		case fnCount:
			return guest.I32Value(2), nil
		case fnGet:
			infoPtr := args[3].I32
			pl := clapdefs.AudioPortInfoLayout
			_ = g.Write(ctx, infoPtr+pl.ChannelCount, u32le(2))
			return guest.I32Value(1), nil
		}
		return guest.TaggedValue{}, nil
	}
}

func TestBuildNilExtensionYieldsEmptyPorts(t *testing.T) {
	g := guesttest.New(4096, "test")
	scope := newScope(g, 4096)

	ports, err := Build(context.Background(), g, scope, nil, true, 128)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ports.BuffersPtr)
	assert.Empty(t, ports.Channels)
}

func TestBuildZeroPortsYieldsEmptyPorts(t *testing.T) {
	g := guesttest.New(4096, "test")
	g.CallFunc = func(ctx context.Context, fn uint32, args []guest.TaggedValue) (guest.TaggedValue, error) {
		if fn == fnCount {
			return guest.I32Value(0), nil
		}
		return guest.TaggedValue{}, nil
	}
	ext := bindFake(t, g)
	scope := newScope(g, 4096)

	ports, err := Build(context.Background(), g, scope, ext, true, 128)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), ports.BuffersPtr)
	assert.Empty(t, ports.Channels)
}

func TestBuildAllocatesBuffersAndChannelPointers(t *testing.T) {
	g := guesttest.New(1<<16, "test")
	twoStereoPorts(g)
	ext := bindFake(t, g)
	scope := newScope(g, 1<<16)

	const maxFrames = 128
	ports, err := Build(context.Background(), g, scope, ext, true, maxFrames)
	require.NoError(t, err)
	require.NotZero(t, ports.BuffersPtr)
	require.Len(t, ports.Channels, 2)

	bl := clapdefs.AudioBufferLayout
	for i, chans := range ports.Channels {
		require.Len(t, chans, 2)

		bufPtr := ports.BuffersPtr + uint32(i)*clapdefs.AudioBufferSize
		channelCount, err := guest.ReadU32(context.Background(), g, xptr32(bufPtr+bl.ChannelCount))
		require.NoError(t, err)
		assert.Equal(t, uint32(2), channelCount)

		dataPtr, err := guest.ReadU32(context.Background(), g, xptr32(bufPtr+bl.Data32))
		require.NoError(t, err)
		for c, samplePtr := range chans {
			got, err := guest.ReadU32(context.Background(), g, xptr32(dataPtr+uint32(c)*4))
			require.NoError(t, err)
			assert.Equal(t, samplePtr, got)
		}
	}
}

func TestBuildPropagatesGetFailure(t *testing.T) {
	g := guesttest.New(1<<16, "test")
	g.CallFunc = func(ctx context.Context, fn uint32, args []guest.TaggedValue) (guest.TaggedValue, error) {
		switch fn {
		case fnCount:
			return guest.I32Value(1), nil
		case fnGet:
			return guest.I32Value(0), nil
		}
		return guest.TaggedValue{}, nil
	}
	ext := bindFake(t, g)
	scope := newScope(g, 1<<16)

	_, err := Build(context.Background(), g, scope, ext, false, 128)
	assert.Error(t, err)
}
