package clapdefs

// Guest-side struct layout offsets. The host and guest do not share a Go
// struct definition, so every field access goes through one of these
// hand-computed offset tables rather than unsafe.Offsetof. Offsets follow
// the wclap32 (32-bit guest, 4-byte pointers, no padding beyond natural
// alignment) struct layouts.

// PluginEntryLayout describes clap_plugin_entry as wclap32 lays it out:
// a version triple, then three function-table slots.
var PluginEntryLayout = struct {
	VersionMajor    uint32
	VersionMinor    uint32
	VersionRevision uint32
	Init            uint32 // Function[bool, (Pointer<char>)]
	Deinit          uint32 // Function[void, ()]
	GetFactory      uint32 // Function[Pointer<void>, (Pointer<char>)]
}{
	VersionMajor:    0,
	VersionMinor:    4,
	VersionRevision: 8,
	Init:            12,
	Deinit:          16,
	GetFactory:      20,
}

// PluginFactoryLayout describes clap_plugin_factory.
var PluginFactoryLayout = struct {
	GetPluginCount      uint32
	GetPluginDescriptor uint32
	CreatePlugin        uint32
}{
	GetPluginCount:      0,
	GetPluginDescriptor: 4,
	CreatePlugin:        8,
}

// DescriptorLayout describes clap_plugin_descriptor. clap_version is a
// 12-byte value (three uint32) embedded at the front, matching upstream
// CLAP's clap_plugin_descriptor.
var DescriptorLayout = struct {
	ClapVersion uint32
	ID          uint32
	Name        uint32
	Vendor      uint32
	URL         uint32
	ManualURL   uint32
	SupportURL  uint32
	Version     uint32
	Description uint32
	Features    uint32
}{
	ClapVersion: 0,
	ID:          12,
	Name:        16,
	Vendor:      20,
	URL:         24,
	ManualURL:   28,
	SupportURL:  32,
	Version:     36,
	Description: 40,
	Features:    44,
}

// PluginLayout describes clap_plugin: desc pointer, plugin_data pointer
// (the guest's own opaque handle, opaque to the host), then the
// lifecycle/process function-table slots wclap actually calls.
var PluginLayout = struct {
	Desc            uint32
	PluginData      uint32
	Init            uint32
	Destroy         uint32
	Activate        uint32
	Deactivate      uint32
	StartProcessing uint32
	StopProcessing  uint32
	Reset           uint32
	Process         uint32
	GetExtension    uint32
	OnMainThread    uint32
}{
	Desc:            0,
	PluginData:      4,
	Init:            8,
	Destroy:         12,
	Activate:        16,
	Deactivate:      20,
	StartProcessing: 24,
	StopProcessing:  28,
	Reset:           32,
	Process:         36,
	GetExtension:    40,
	OnMainThread:    44,
}

// HostLayout describes clap_host, the structure wclap writes into guest
// memory once per HostedWclap and hands to the guest's init().
var HostLayout = struct {
	ClapVersion     uint32
	HostData        uint32 // registry index of the owning HostedPlugin, not a pointer
	Name            uint32
	Vendor          uint32
	URL             uint32
	Version         uint32
	GetExtension    uint32
	RequestRestart  uint32
	RequestProcess  uint32
	RequestCallback uint32
}{
	ClapVersion:     0,
	HostData:        12,
	Name:            16,
	Vendor:          20,
	URL:             24,
	Version:         28,
	GetExtension:    32,
	RequestRestart:  36,
	RequestProcess:  40,
	RequestCallback: 44,
}

// ParamInfoLayout describes clap_param_info.
var ParamInfoLayout = struct {
	ID           uint32
	Flags        uint32
	Cookie       uint32
	Name         uint32 // fixed-size char[CLAP_NAME_SIZE] inline, not a pointer
	Module       uint32 // fixed-size char[CLAP_PATH_SIZE] inline
	MinValue     uint32
	MaxValue     uint32
	DefaultValue uint32
}{
	ID:           0,
	Flags:        4,
	Cookie:       8,
	Name:         12,
	Module:       12 + 256,
	MinValue:     12 + 256 + 1024 + 4, // padded to 8-byte alignment for f64
	MaxValue:     12 + 256 + 1024 + 4 + 8,
	DefaultValue: 12 + 256 + 1024 + 4 + 16,
}

// NameSize and PathSize match CLAP_NAME_SIZE / CLAP_PATH_SIZE.
const (
	NameSize = 256
	PathSize = 1024
)

// ParamInfoSize is sizeof(clap_param_info) on the wclap32 wire: id (4) +
// flags (4) + cookie (4) + name (NameSize) + module (PathSize) + 4 bytes of
// padding that 8-byte-align the doubles + min/max/default (8 each).
const ParamInfoSize = 12 + NameSize + PathSize + 4 + 24

// ParamsExtLayout describes clap_plugin_params, the function table a
// plug-in hands back from get_extension(ExtParams).
var ParamsExtLayout = struct {
	Count       uint32 // Function[u32, (Pointer<plugin>)]
	GetInfo     uint32 // Function[bool, (Pointer<plugin>, u32, Pointer<param_info>)]
	GetValue    uint32 // Function[bool, (Pointer<plugin>, u32, Pointer<f64>)]
	ValueToText uint32 // Function[bool, (Pointer<plugin>, u32, f64, Pointer<char>, u32)]
	TextToValue uint32 // Function[bool, (Pointer<plugin>, u32, Pointer<char>, Pointer<f64>)]
	Flush       uint32 // Function[void, (Pointer<plugin>, Pointer<in_events>, Pointer<out_events>)]
}{
	Count:       0,
	GetInfo:     4,
	GetValue:    8,
	ValueToText: 12,
	TextToValue: 16,
	Flush:       20,
}

// AudioPortsExtLayout describes clap_plugin_audio_ports.
var AudioPortsExtLayout = struct {
	Count uint32 // Function[u32, (Pointer<plugin>, bool)]
	Get   uint32 // Function[bool, (Pointer<plugin>, u32, bool, Pointer<audio_port_info>)]
}{
	Count: 0,
	Get:   4,
}

// StateExtLayout describes clap_plugin_state.
var StateExtLayout = struct {
	Save uint32 // Function[bool, (Pointer<plugin>, Pointer<ostream>)]
	Load uint32 // Function[bool, (Pointer<plugin>, Pointer<istream>)]
}{
	Save: 0,
	Load: 4,
}

// WebviewExtLayout describes wclap's non-upstream clap_plugin_webview.
var WebviewExtLayout = struct {
	GetURI      uint32 // Function[u32, (Pointer<plugin>, Pointer<char>, u32)]
	Receive     uint32 // Function[void, (Pointer<plugin>, Pointer<u8>, u32)]
	GetResource uint32 // Function[bool, (Pointer<plugin>, Pointer<char>, Pointer<char>, u32, Pointer<ostream>)]
}{
	GetURI:      0,
	Receive:     4,
	GetResource: 8,
}

// InEventsLayout / OutEventsLayout describe clap_input_events /
// clap_output_events: a ctx slot (the host's wregistry index for the
// owning Queue, not a pointer) followed by one function slot each.
var InEventsLayout = struct {
	Ctx  uint32
	Size uint32 // Function[u32, (Pointer<in_events>)]
	Get  uint32 // Function[Pointer<event_header>, (Pointer<in_events>, u32)]
}{
	Ctx:  0,
	Size: 4,
	Get:  8,
}

var OutEventsLayout = struct {
	Ctx     uint32
	TryPush uint32 // Function[bool, (Pointer<out_events>, Pointer<event_header>)]
}{
	Ctx:     0,
	TryPush: 4,
}

// AudioPortInfoLayout describes clap_audio_port_info.
var AudioPortInfoLayout = struct {
	ID           uint32
	Name         uint32 // char[NameSize] inline
	Flags        uint32
	ChannelCount uint32
	PortType     uint32
	InPlacePair  uint32
}{
	ID:           0,
	Name:         4,
	Flags:        4 + NameSize,
	ChannelCount: 8 + NameSize,
	PortType:     12 + NameSize,
	InPlacePair:  16 + NameSize,
}

// AudioPortInfoSize is sizeof(clap_audio_port_info) on the wclap32 wire.
const AudioPortInfoSize = 20 + NameSize

// AudioBufferLayout describes clap_audio_buffer: a data32 pointer array,
// a data64 pointer array (always null in wclap, which only moves f32
// samples across the guest boundary), channel_count, latency, and an
// 8-byte constant_mask.
var AudioBufferLayout = struct {
	Data32       uint32
	Data64       uint32
	ChannelCount uint32
	Latency      uint32
	ConstantMask uint32
}{
	Data32:       0,
	Data64:       4,
	ChannelCount: 8,
	Latency:      12,
	ConstantMask: 16,
}

// AudioBufferSize is sizeof(clap_audio_buffer) on the wclap32 wire.
const AudioBufferSize = 24

// ProcessLayout describes clap_process: a steady_time/frames_count pair,
// a transport pointer (always null; wclap never synthesizes transport
// info), the audio port arrays, and the in/out event table pointers.
var ProcessLayout = struct {
	SteadyTime        uint32
	FramesCount       uint32
	Transport         uint32
	AudioInputs       uint32
	AudioOutputs      uint32
	AudioInputsCount  uint32
	AudioOutputsCount uint32
	InEvents          uint32
	OutEvents         uint32
}{
	SteadyTime:        0,
	FramesCount:       8,
	Transport:         12,
	AudioInputs:       16,
	AudioOutputs:      20,
	AudioInputsCount:  24,
	AudioOutputsCount: 28,
	InEvents:          32,
	OutEvents:         36,
}

// ProcessSize is sizeof(clap_process) on the wclap32 wire.
const ProcessSize = 40

// IStreamLayout / OStreamLayout describe clap_istream / clap_ostream: a
// ctx slot (the owning plug-in's registry index, matching the
// input_events/output_events convention) followed by one function slot
// each.
var IStreamLayout = struct {
	Ctx  uint32
	Read uint32 // Function[i64, (Pointer<istream>, Pointer<u8>, u64)]
}{
	Ctx:  0,
	Read: 4,
}

var OStreamLayout = struct {
	Ctx   uint32
	Write uint32 // Function[i64, (Pointer<ostream>, Pointer<u8>, u64)]
}{
	Ctx:   0,
	Write: 4,
}

// Host-side extension function tables: structs wclap builds once (they
// carry no per-plugin ctx field; the guest always passes the clap_host_t
// pointer itself, whose host_data field the trampolines use to recover
// the calling plug-in) and whose function slots the guest calls into to
// request rescans, report dirty state, or push a webview message.

// HostParamsExtLayout describes clap_host_params.
var HostParamsExtLayout = struct {
	Rescan uint32
	Clear  uint32
}{
	Rescan: 0,
	Clear:  4,
}

// HostStateExtLayout describes clap_host_state.
var HostStateExtLayout = struct {
	MarkDirty uint32
}{
	MarkDirty: 0,
}

// HostLatencyExtLayout describes clap_host_latency.
var HostLatencyExtLayout = struct {
	Changed uint32
}{
	Changed: 0,
}

// HostAudioPortsExtLayout describes clap_host_audio_ports.
var HostAudioPortsExtLayout = struct {
	IsRescanFlagSupported uint32
	Rescan                uint32
}{
	IsRescanFlagSupported: 0,
	Rescan:                4,
}

// HostNotePortsExtLayout describes clap_host_note_ports.
var HostNotePortsExtLayout = struct {
	SupportedDialects uint32
	Rescan            uint32
}{
	SupportedDialects: 0,
	Rescan:            4,
}

// HostTailExtLayout describes clap_host_tail.
var HostTailExtLayout = struct {
	Changed uint32
}{
	Changed: 0,
}

// HostGUIExtLayout describes clap_host_gui.
var HostGUIExtLayout = struct {
	ResizeHintsChanged uint32
	RequestResize      uint32
	RequestShow        uint32
	RequestHide        uint32
	Closed             uint32
}{
	ResizeHintsChanged: 0,
	RequestResize:      4,
	RequestShow:        8,
	RequestHide:        12,
	Closed:             16,
}

// HostWebviewExtLayout describes wclap's non-upstream clap_host_webview:
// the single entry point a guest calls to push a message out to the
// embedding application's UI.
var HostWebviewExtLayout = struct {
	Send uint32
}{
	Send: 0,
}

// HostLogExtLayout describes clap_host_log: the single entry point a
// guest uses to report a log line through the host instead of its own
// stdio, which wclap has no access to across the guest boundary.
var HostLogExtLayout = struct {
	Log uint32
}{
	Log: 0,
}
