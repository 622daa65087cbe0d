package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/wclaphost/pkg/clapdefs"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{Size: 48, Time: 12, SpaceID: 0, Type: clapdefs.EventParamValue, Flags: clapdefs.EventFlagIsLive}
	buf := make([]byte, clapdefs.HeaderSize)
	EncodeHeader(buf, h)
	assert.Equal(t, h, DecodeHeader(buf))
}

func TestParamValuePayloadShape(t *testing.T) {
	raw := ParamValuePayload(0, clapdefs.EventFlagIsLive, 17, -1, -1, -1, -1, 0.5)
	require.Len(t, raw, int(clapdefs.ParamValueEventSize))

	h := DecodeHeader(raw)
	assert.Equal(t, clapdefs.EventParamValue, h.Type)
	assert.Equal(t, clapdefs.ParamValueEventSize, h.Size)
	assert.Equal(t, uint32(0), h.Time)
}

func TestAcceptEvent(t *testing.T) {
	assert.True(t, AcceptEvent(clapdefs.EventNoteOn))
	assert.True(t, AcceptEvent(clapdefs.EventMIDI))
	assert.False(t, AcceptEvent(clapdefs.EventParamValue))
}

func TestIsParamEvent(t *testing.T) {
	assert.True(t, IsParamEvent(clapdefs.EventParamValue))
	assert.True(t, IsParamEvent(clapdefs.EventParamGestureBegin))
	assert.False(t, IsParamEvent(clapdefs.EventNoteOn))
}
