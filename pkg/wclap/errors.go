package wclap

import "errors"

// ErrNoFactory is returned by CreatePlugin and get_info's plugin listing
// when the cached plugin-factory pointer is null, either because
// clap_plugin_entry.get_factory failed at construction or because the
// guest's entry has since gone bad. Both paths degrade to an empty
// plugin list or a create_plugin failure rather than a panic.
var ErrNoFactory = errors.New("wclap: guest reports no clap.plugin-factory")

// ErrPluginCreateFailed is returned when the factory's create_plugin
// function returns a null plug-in pointer.
var ErrPluginCreateFailed = errors.New("wclap: factory.create_plugin returned null")

// ErrPluginInitFailed is returned when a freshly created plug-in's own
// init() reports failure.
var ErrPluginInitFailed = errors.New("wclap: plugin.init returned false")

// ErrNoParamsExtension is returned by param-facing operations when the
// plug-in never reported a clap.params extension.
var ErrNoParamsExtension = errors.New("wclap: plugin has no clap.params extension")

// ErrNoStateExtension is returned by save_state/load_state when the
// plug-in never reported a clap.state extension.
var ErrNoStateExtension = errors.New("wclap: plugin has no clap.state extension")

// ErrNotStarted is returned by process when the plug-in has not
// been started, so no process_struct or audio-port buffers exist yet.
var ErrNotStarted = errors.New("wclap: plugin has not been started")

// ErrActivateFailed is returned when plugin.activate reports failure.
var ErrActivateFailed = errors.New("wclap: plugin.activate returned false")

// ErrStartProcessingFailed is returned when plugin.start_processing
// reports failure.
var ErrStartProcessingFailed = errors.New("wclap: plugin.start_processing returned false")
