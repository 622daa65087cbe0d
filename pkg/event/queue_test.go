package event

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/wclaphost/pkg/arena"
	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/guest/guesttest"
)

func TestCopyPendingSortsStablyByTime(t *testing.T) {
	q := NewQueue()
	for _, tm := range []uint32{5, 1, 5, 3} {
		q.AddEvent(ParamValuePayload(tm, 0, 1, -1, -1, -1, -1, 0))
	}
	require.Equal(t, 4, q.Len())

	g := guesttest.New(4096, "test")
	a := &arena.Arena{Base: 8, Size: 2048}
	scope := a.Scope()

	copied, err := q.CopyPending(context.Background(), g, scope)
	require.NoError(t, err)
	require.Len(t, copied, 4)

	times := make([]uint32, len(copied))
	for i, c := range copied {
		times[i] = c.Time
	}
	assert.Equal(t, []uint32{1, 3, 5, 5}, times)
	assert.Less(t, copied[2].Ptr, copied[3].Ptr, "equal-time events must keep insertion order")
	assert.Equal(t, 0, q.Len(), "pending buffer must be empty after copy")
}

func TestCopyPendingFilteredKeepsNonMatching(t *testing.T) {
	q := NewQueue()
	q.AddEvent(ParamValuePayload(0, 0, 1, -1, -1, -1, -1, 0))

	noteBuf := make([]byte, clapdefs.HeaderSize)
	EncodeHeader(noteBuf, Header{Size: clapdefs.HeaderSize, Time: 0, Type: clapdefs.EventNoteOn})
	q.AddEvent(noteBuf)

	g := guesttest.New(4096, "test")
	a := &arena.Arena{Base: 8, Size: 2048}
	scope := a.Scope()

	copied, err := q.CopyPendingFiltered(context.Background(), g, scope, IsParamEvent)
	require.NoError(t, err)
	require.Len(t, copied, 1)
	assert.Equal(t, 1, q.Len(), "non-param event should remain pending")
}

func TestClearCopied(t *testing.T) {
	q := NewQueue()
	q.SetCopied([]CopiedEvent{{Time: 1, Ptr: 10}})
	assert.Len(t, q.Copied(), 1)
	q.ClearCopied()
	assert.Empty(t, q.Copied())
}
