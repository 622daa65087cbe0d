// Package event implements the audio-thread event bridge: PendingEvent,
// the raw byte buffer holding events on their way into the guest, and
// CopiedEvent, the sorted list of events staged in the audio-thread arena
// for a process() call. Events never exist as typed Go structs here;
// they stay raw header-plus-payload bytes, since their final home is
// guest memory addressed only by offset.
package event

import (
	"encoding/binary"
	"math"

	"github.com/justyntemme/wclaphost/pkg/clapdefs"
)

// Header mirrors clap_event_header's wire layout: size, time, space_id,
// type, flags, in that order, 16 bytes total.
type Header struct {
	Size    uint32
	Time    uint32
	SpaceID uint16
	Type    uint16
	Flags   uint32
}

// EncodeHeader writes h into the first clapdefs.HeaderSize bytes of buf.
func EncodeHeader(buf []byte, h Header) {
	binary.LittleEndian.PutUint32(buf[0:4], h.Size)
	binary.LittleEndian.PutUint32(buf[4:8], h.Time)
	binary.LittleEndian.PutUint16(buf[8:10], h.SpaceID)
	binary.LittleEndian.PutUint16(buf[10:12], h.Type)
	binary.LittleEndian.PutUint32(buf[12:16], h.Flags)
}

// DecodeHeader reads a Header from the first clapdefs.HeaderSize bytes of
// buf.
func DecodeHeader(buf []byte) Header {
	return Header{
		Size:    binary.LittleEndian.Uint32(buf[0:4]),
		Time:    binary.LittleEndian.Uint32(buf[4:8]),
		SpaceID: binary.LittleEndian.Uint16(buf[8:10]),
		Type:    binary.LittleEndian.Uint16(buf[10:12]),
		Flags:   binary.LittleEndian.Uint32(buf[12:16]),
	}
}

// ParamValuePayload builds the full wire bytes of a PARAM_VALUE event,
// used by HostedPlugin.SetParam to synthesize the event it enqueues.
// cookie is always 0: plug-ins are required to look the param up by id.
func ParamValuePayload(time uint32, flags uint32, paramID uint32, noteID int32, port, channel, key int16, value float64) []byte {
	buf := make([]byte, clapdefs.ParamValueEventSize)
	EncodeHeader(buf, Header{
		Size:    clapdefs.ParamValueEventSize,
		Time:    time,
		SpaceID: clapdefs.CoreEventSpaceID,
		Type:    clapdefs.EventParamValue,
		Flags:   flags,
	})
	l := clapdefs.ParamValueEventLayout
	binary.LittleEndian.PutUint32(buf[l.ParamID:l.ParamID+4], paramID)
	binary.LittleEndian.PutUint32(buf[l.Cookie:l.Cookie+4], 0)
	binary.LittleEndian.PutUint32(buf[l.NoteID:l.NoteID+4], uint32(noteID))
	binary.LittleEndian.PutUint16(buf[l.Port:l.Port+2], uint16(port))
	binary.LittleEndian.PutUint16(buf[l.Channel:l.Channel+2], uint16(channel))
	binary.LittleEndian.PutUint16(buf[l.Key:l.Key+2], uint16(key))
	binary.LittleEndian.PutUint64(buf[l.Value:l.Value+8], math.Float64bits(value))
	return buf
}

// IsParamEvent reports whether t is one of the param-related event types
// params_flush copies out of the pending buffer.
func IsParamEvent(t uint16) bool {
	switch t {
	case clapdefs.EventParamValue, clapdefs.EventParamMod,
		clapdefs.EventParamGestureBegin, clapdefs.EventParamGestureEnd:
		return true
	default:
		return false
	}
}

// forwardable event types: these are the only ones accept_event allows
// through without translation, since they carry no cookie or param-id
// that would need remapping between plug-ins.
var forwardable = map[uint16]bool{
	clapdefs.EventNoteOn:    true,
	clapdefs.EventNoteOff:   true,
	clapdefs.EventNoteChoke: true,
	clapdefs.EventMIDI:      true,
	clapdefs.EventMIDISysex: true,
	clapdefs.EventMIDI2:     true,
}

// AcceptEvent reports whether an externally-sourced raw event of type t
// is safe to forward into the pending buffer untranslated.
func AcceptEvent(t uint16) bool {
	return forwardable[t]
}
