package webview

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/wclaphost/pkg/arena"
	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/guest/guesttest"
	"github.com/justyntemme/wclaphost/pkg/state"
)

const (
	fnGetURI = iota + 1
	fnReceive
	fnGetResource
)

func bindFake(t *testing.T, g *guesttest.Instance) *Extension {
	t.Helper()
	extPtr, err := g.Malloc(context.Background(), 16)
	require.NoError(t, err)
	l := clapdefs.WebviewExtLayout
	require.NoError(t, g.Write(context.Background(), extPtr+l.GetURI, u32le(fnGetURI)))
	require.NoError(t, g.Write(context.Background(), extPtr+l.Receive, u32le(fnReceive)))
	require.NoError(t, g.Write(context.Background(), extPtr+l.GetResource, u32le(fnGetResource)))
	ext, err := Bind(context.Background(), g, 100, extPtr)
	require.NoError(t, err)
	return ext
}

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func TestReadURINilExtensionYieldsEmpty(t *testing.T) {
	g := guesttest.New(4096, "test")
	a := &arena.Arena{Base: g.Bump, Size: 4096}
	g.Bump += a.Size
	scope := a.Scope()

	uri, err := ReadURI(context.Background(), g, scope, nil)
	require.NoError(t, err)
	assert.Empty(t, uri)
}

func TestReadURIReturnsString(t *testing.T) {
	g := guesttest.New(8192, "test")
	g.CallFunc = func(ctx context.Context, fn uint32, args []guest.TaggedValue) (guest.TaggedValue, error) {
		if fn == fnGetURI {
			bufPtr := args[1].I32
			uri := "wclap://plugin-ui"
			_ = g.Write(ctx, bufPtr, []byte(uri))
			return guest.I32Value(uint32(len(uri))), nil
		}
		return guest.TaggedValue{}, nil
	}
	ext := bindFake(t, g)

	a := &arena.Arena{Base: g.Bump, Size: 4096}
	g.Bump += a.Size
	scope := a.Scope()

	uri, err := ReadURI(context.Background(), g, scope, ext)
	require.NoError(t, err)
	assert.Equal(t, "wclap://plugin-ui", uri)
}

func TestReadURIOutOfRangeYieldsEmpty(t *testing.T) {
	g := guesttest.New(4096, "test")
	g.CallFunc = func(ctx context.Context, fn uint32, args []guest.TaggedValue) (guest.TaggedValue, error) {
		return guest.I32Value(0), nil
	}
	ext := bindFake(t, g)

	a := &arena.Arena{Base: g.Bump, Size: 4096}
	g.Bump += a.Size
	scope := a.Scope()

	uri, err := ReadURI(context.Background(), g, scope, ext)
	require.NoError(t, err)
	assert.Empty(t, uri)
}

func TestMessageNilExtensionIsNoop(t *testing.T) {
	g := guesttest.New(4096, "test")
	a := &arena.Arena{Base: g.Bump, Size: 4096}
	g.Bump += a.Size
	scope := a.Scope()

	err := Message(context.Background(), g, scope, nil, []byte("hi"))
	assert.NoError(t, err)
}

func TestMessageForwardsToReceive(t *testing.T) {
	g := guesttest.New(8192, "test")
	var received []byte
	g.CallFunc = func(ctx context.Context, fn uint32, args []guest.TaggedValue) (guest.TaggedValue, error) {
		if fn == fnReceive {
			ptr := args[1].I32
			length := args[2].I32
			buf := make([]byte, length)
			_ = g.Read(ctx, ptr, buf)
			received = buf
		}
		return guest.TaggedValue{}, nil
	}
	ext := bindFake(t, g)

	a := &arena.Arena{Base: g.Bump, Size: 4096}
	g.Bump += a.Size
	scope := a.Scope()

	require.NoError(t, Message(context.Background(), g, scope, ext, []byte("postMessage payload")))
	assert.Equal(t, "postMessage payload", string(received))
}

func TestGetResourceResultNilExtensionYieldsNil(t *testing.T) {
	g := guesttest.New(4096, "test")
	a := &arena.Arena{Base: g.Bump, Size: 4096}
	g.Bump += a.Size
	scope := a.Scope()
	buf := state.NewBuffer()

	res, err := GetResourceResult(context.Background(), g, scope, buf, nil, 0, "/index.html")
	require.NoError(t, err)
	assert.Nil(t, res)
}

func TestGetResourceResultSuccess(t *testing.T) {
	g := guesttest.New(8192, "test")
	buf := state.NewBuffer()
	g.CallFunc = func(ctx context.Context, fn uint32, args []guest.TaggedValue) (guest.TaggedValue, error) {
		if fn == fnGetResource {
			mimePtr := args[2].I32
			_ = g.Write(ctx, mimePtr, []byte("text/html"))
			buf.WriteChunkLocked([]byte("<html></html>"))
			return guest.I32Value(1), nil
		}
		return guest.TaggedValue{}, nil
	}
	ext := bindFake(t, g)

	a := &arena.Arena{Base: g.Bump, Size: 4096}
	g.Bump += a.Size
	scope := a.Scope()

	res, err := GetResourceResult(context.Background(), g, scope, buf, ext, 0, "/index.html")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, "text/html", res.Type)
	assert.Equal(t, "<html></html>", string(res.Bytes))
}
