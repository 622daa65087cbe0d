package wclap

import (
	"context"

	"github.com/justyntemme/wclaphost/pkg/wlog"
)

// EnvImports holds the five functions wclap's core requires from the
// outer application embedding it: the "env" module imports of the
// bridge contract. A caller that doesn't need a particular hook can
// leave its field nil; NopEnvImports fills every field with a
// logging-only default.
type EnvImports struct {
	// EventsOutTryPush forwards a guest plug-in's out_events.try_push to
	// the outer application, which decides whether to accept it.
	EventsOutTryPush func(ctx context.Context, pluginIndex uint32, guestPtr, length uint32) (bool, error)

	// WebviewSend forwards a guest plug-in's webview.send postMessage
	// payload to the outer application's UI.
	WebviewSend func(ctx context.Context, pluginIndex uint32, guestPtr, length uint32) (bool, error)

	// StateMarkDirty forwards a guest plug-in's state.mark_dirty
	// notification so the outer application can prompt to save.
	StateMarkDirty func(ctx context.Context, pluginIndex uint32) (bool, error)

	// ParamsRescan forwards a guest plug-in's params.rescan request.
	ParamsRescan func(ctx context.Context, pluginIndex uint32, flags uint32) (bool, error)

	// Log forwards a guest plug-in's clap.log extension call.
	Log func(ctx context.Context, pluginIndex uint32, severity int32, guestPtr, length uint32) (bool, error)
}

// NopEnvImports returns an EnvImports whose hooks only log at debug
// level and report the call as unhandled, for callers that don't need
// the outer-application roundtrip (tests, or a headless host).
func NopEnvImports() *EnvImports {
	logger := wlog.New("wclap")
	return &EnvImports{
		EventsOutTryPush: func(ctx context.Context, pluginIndex uint32, guestPtr, length uint32) (bool, error) {
			logger.Debug().Uint32("plugin", pluginIndex).Msg("events_out.try_push: no outer-app import registered")
			return false, nil
		},
		WebviewSend: func(ctx context.Context, pluginIndex uint32, guestPtr, length uint32) (bool, error) {
			logger.Debug().Uint32("plugin", pluginIndex).Msg("webview.send: no outer-app import registered")
			return false, nil
		},
		StateMarkDirty: func(ctx context.Context, pluginIndex uint32) (bool, error) {
			logger.Debug().Uint32("plugin", pluginIndex).Msg("state.mark_dirty: no outer-app import registered")
			return false, nil
		},
		ParamsRescan: func(ctx context.Context, pluginIndex uint32, flags uint32) (bool, error) {
			logger.Debug().Uint32("plugin", pluginIndex).Uint32("flags", flags).Msg("params.rescan: no outer-app import registered")
			return false, nil
		},
		Log: func(ctx context.Context, pluginIndex uint32, severity int32, guestPtr, length uint32) (bool, error) {
			logger.Debug().Uint32("plugin", pluginIndex).Int32("severity", severity).Msg("plugin log: no outer-app import registered")
			return false, nil
		},
	}
}
