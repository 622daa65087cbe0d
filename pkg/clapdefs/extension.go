// Package clapdefs holds the CLAP 1.2.7 wire-level constants shared by
// both halves of the bridge: extension identifiers, event type/flag
// values, process status codes, param flags and log severities, plus the
// guest-side struct layout offsets used by pkg/xptr's field projection.
//
// Nothing here talks to a guest.Instance. It is pure data, generalized
// from the cgo-bound constant tables the CLAP plugin SDK used to keep
// next to its C structs.
package clapdefs

// CLAP extension identifiers, as passed to get_extension / clap_host's
// get_extension callback.
const (
	ExtAudioPorts     = "clap.audio-ports"
	ExtParams         = "clap.params"
	ExtState          = "clap.state"
	ExtGUI            = "clap.gui"
	ExtNotePorts      = "clap.note-ports"
	ExtTimerSupport   = "clap.timer-support"
	ExtLatency        = "clap.latency"
	ExtTail           = "clap.tail"
	ExtRender         = "clap.render"
	ExtPosixFDSupport = "clap.posix-fd-support"
	ExtThreadCheck    = "clap.thread-check"
	ExtThreadPool     = "clap.thread-pool"
	ExtVoiceInfo      = "clap.voice-info"
	ExtTrackInfo      = "clap.track-info"
	ExtLog            = "clap.log"
	ExtPresetLoad     = "clap.preset-load"
	ExtRemoteControls = "clap.remote-controls"
	ExtContextMenu    = "clap.context-menu"

	// ExtWebview is not part of upstream CLAP; wclap adds it so a guest
	// plugin's GUI can be driven through the same postMessage channel used
	// by the browser-hosted reference implementation this bridge is
	// modeled on.
	ExtWebview = "clap.webview/3"
)

// LogSeverity mirrors clap_log_severity.
const (
	LogDebug             int32 = 0
	LogInfo              int32 = 1
	LogWarning           int32 = 2
	LogError             int32 = 3
	LogFatal             int32 = 4
	LogHostMisbehaving   int32 = 5
	LogPluginMisbehaving int32 = 6
)
