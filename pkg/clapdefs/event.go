package clapdefs

// Event type ids, matching clap_event_type.
const (
	EventNoteOn            uint16 = 0
	EventNoteOff           uint16 = 1
	EventNoteChoke         uint16 = 2
	EventNoteEnd           uint16 = 3
	EventNoteExpression    uint16 = 4
	EventParamValue        uint16 = 5
	EventParamMod          uint16 = 6
	EventParamGestureBegin uint16 = 7
	EventParamGestureEnd   uint16 = 8
	EventTransport         uint16 = 9
	EventMIDI              uint16 = 10
	EventMIDISysex         uint16 = 11
	EventMIDI2             uint16 = 12
)

// Event flags, matching clap_event_flags.
const (
	EventFlagIsLive     uint32 = 1 << 0
	EventFlagDontRecord uint32 = 1 << 1
)

// Core event space: every event this bridge generates or forwards uses
// the core space id, since wclap does not broker third-party event
// namespaces.
const CoreEventSpaceID uint16 = 0

// HeaderSize is sizeof(clap_event_header) on the guest: uint32 size,
// uint32 time, uint16 space_id, uint16 type, uint32 flags.
const HeaderSize uint32 = 16

// ParamValueEventSize is sizeof(clap_event_param_value) on the wclap
// 32-bit wire: header (16) + param_id (4) + cookie pointer (4) + note_id
// (4) + port_index/channel/key (2 each, →offset 34) + 6 bytes padding so
// value lands on an 8-byte boundary + value (8, float64).
const ParamValueEventSize uint32 = 48

// ParamValueEventLayout gives the byte offset of each field within a
// ParamValueEventSize-byte buffer, counted from the start of the event
// (the header occupies offset 0..HeaderSize).
var ParamValueEventLayout = struct {
	ParamID uint32
	Cookie  uint32
	NoteID  uint32
	Port    uint32
	Channel uint32
	Key     uint32
	Value   uint32
}{
	ParamID: 16,
	Cookie:  20,
	NoteID:  24,
	Port:    28,
	Channel: 30,
	Key:     32,
	Value:   40,
}

// Transport flags, matching clap_transport_flags.
const (
	TransportHasTempo         uint32 = 1 << 0
	TransportHasBeatsTime     uint32 = 1 << 1
	TransportHasSecondsTime   uint32 = 1 << 2
	TransportHasTimeSignature uint32 = 1 << 3
	TransportIsPlaying        uint32 = 1 << 4
	TransportIsRecording      uint32 = 1 << 5
	TransportIsLooping        uint32 = 1 << 6
	TransportIsWithinPreRoll  uint32 = 1 << 7
)
