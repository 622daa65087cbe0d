package arena

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/wclaphost/pkg/guest/guesttest"
)

func TestArenaAllocAligned(t *testing.T) {
	a := &Arena{Base: 1000, Size: 256}

	off1, err := a.Alloc(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), off1)

	off2, err := a.Alloc(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(1008), off2) // aligned up from 3 to 8
}

func TestArenaOutOfSpace(t *testing.T) {
	a := &Arena{Base: 0, Size: 8}
	_, err := a.Alloc(4)
	require.NoError(t, err)
	_, err = a.Alloc(8)
	assert.Error(t, err)
}

func TestScopedReleaseRewinds(t *testing.T) {
	a := &Arena{Base: 0, Size: 64}

	_, err := a.Alloc(8)
	require.NoError(t, err)

	scope := a.Scope()
	_, err = scope.Alloc(16)
	require.NoError(t, err)
	assert.Equal(t, uint32(24), a.cursor)

	scope.Release()
	assert.Equal(t, uint32(8), a.cursor)
}

func TestScopedWriteString(t *testing.T) {
	g := guesttest.New(256, "test")
	a := &Arena{Base: 8, Size: 128}
	scope := a.Scope()

	ctx := context.Background()
	off, err := scope.WriteString(ctx, g, "hello")
	require.NoError(t, err)

	buf := make([]byte, 6)
	require.NoError(t, g.Read(ctx, off, buf))
	assert.Equal(t, "hello\x00", string(buf))
}

func TestPoolReusesArenas(t *testing.T) {
	g := guesttest.New(4096, "test")
	ctx := context.Background()
	pool := NewPool(64)

	own1, err := pool.GetOrCreate(ctx, g)
	require.NoError(t, err)
	base := own1.Arena().Base
	own1.Release()

	own2, err := pool.GetOrCreate(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, base, own2.Arena().Base, "released arena should be reused")
}

func TestPoolAllocatesFreshWhenEmpty(t *testing.T) {
	g := guesttest.New(4096, "test")
	ctx := context.Background()
	pool := NewPool(64)

	own1, err := pool.GetOrCreate(ctx, g)
	require.NoError(t, err)
	own2, err := pool.GetOrCreate(ctx, g)
	require.NoError(t, err)

	assert.NotEqual(t, own1.Arena().Base, own2.Arena().Base)
}
