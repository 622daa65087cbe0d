package wclap

import (
	"context"

	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/xptr"
)

const maxExtensionIDLen = 256

// registerTrampolines installs every host-callable function the guest's
// clap_host, clap_input_events, clap_output_events, clap_istream and
// clap_ostream tables reference, caching each one's guest-visible
// function-table index on w.
func (w *HostedWclap) registerTrampolines(ctx context.Context) error {
	reg := func(fn guest.HostFunc, out *uint32) error {
		idx, err := w.g.RegisterHost(ctx, fn)
		if err != nil {
			return err
		}
		*out = idx
		return nil
	}

	for _, t := range []struct {
		fn  guest.HostFunc
		out *uint32
	}{
		{w.trampolineGetExtension, &w.hostGetExtensionFn},
		{w.trampolineRequestRestart, &w.hostRequestRestartFn},
		{w.trampolineRequestProcess, &w.hostRequestProcessFn},
		{w.trampolineRequestCallback, &w.hostRequestCallbackFn},
		{w.trampolineInEventsSize, &w.inEventsSizeFn},
		{w.trampolineInEventsGet, &w.inEventsGetFn},
		{w.trampolineOutEventsTryPush, &w.outEventsTryPushFn},
		{w.trampolineIStreamRead, &w.istreamReadFn},
		{w.trampolineOStreamWrite, &w.ostreamWriteFn},
		{w.trampolineParamsRescan, &w.paramsRescanFn},
		{w.trampolineParamsClear, &w.paramsClearFn},
		{w.trampolineStateMarkDirty, &w.stateMarkDirtyFn},
		{w.trampolineLatencyChanged, &w.latencyChangedFn},
		{w.trampolineAudioPortsIsRescanSupported, &w.audioPortsIsRescanFn},
		{w.trampolineAudioPortsRescan, &w.audioPortsRescanFn},
		{w.trampolineNotePortsSupportedDialects, &w.notePortsSupportedFn},
		{w.trampolineNotePortsRescan, &w.notePortsRescanFn},
		{w.trampolineTailChanged, &w.tailChangedFn},
		{w.trampolineGUIResizeHintsChanged, &w.guiResizeHintsFn},
		{w.trampolineGUIRequestResize, &w.guiRequestResizeFn},
		{w.trampolineGUIRequestShow, &w.guiRequestShowFn},
		{w.trampolineGUIRequestHide, &w.guiRequestHideFn},
		{w.trampolineGUIClosed, &w.guiClosedFn},
		{w.trampolineWebviewSend, &w.webviewSendFn},
		{w.trampolineLog, &w.logFn},
	} {
		if err := reg(t.fn, t.out); err != nil {
			return err
		}
	}
	return nil
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// pluginFromHostPtr recovers the calling HostedPlugin from a clap_host_t
// pointer by reading its host_data field, which wclap writes as the
// plug-in's registry index rather than a real pointer.
func (w *HostedWclap) pluginFromHostPtr(ctx context.Context, hostPtr uint32) *HostedPlugin {
	idx, err := guest.ReadU32(ctx, w.g, xptr.Pointer[uint32]{Offset: hostPtr + clapdefs.HostLayout.HostData})
	if err != nil {
		return nil
	}
	return w.plugins.Get(idx)
}

// pluginFromCtxPtr recovers the calling HostedPlugin from a
// clap_input_events/clap_output_events/clap_istream/clap_ostream
// pointer, whose ctx field (offset 0 on every one of those layouts)
// holds the plug-in's registry index the same way host_data does.
func (w *HostedWclap) pluginFromCtxPtr(ctx context.Context, structPtr uint32) *HostedPlugin {
	idx, err := guest.ReadU32(ctx, w.g, xptr.Pointer[uint32]{Offset: structPtr})
	if err != nil {
		return nil
	}
	return w.plugins.Get(idx)
}

// trampolineGetExtension implements clap_host.get_extension(host, id):
// it matches id against the nine host-side extension tables wclap
// builds once at construction, regardless of which plug-in is asking.
func (w *HostedWclap) trampolineGetExtension(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	idPtr := args[1].I32
	id, err := guest.ReadCString(ctx, w.g, xptr.Pointer[byte]{Offset: idPtr}, maxExtensionIDLen)
	if err != nil {
		return guest.I32Value(0)
	}
	var ptr uint32
	switch id {
	case clapdefs.ExtParams:
		ptr = w.hostParamsExtPtr
	case clapdefs.ExtState:
		ptr = w.hostStateExtPtr
	case clapdefs.ExtLatency:
		ptr = w.hostLatencyExtPtr
	case clapdefs.ExtAudioPorts:
		ptr = w.hostAudioPortsExtPtr
	case clapdefs.ExtNotePorts:
		ptr = w.hostNotePortsExtPtr
	case clapdefs.ExtTail:
		ptr = w.hostTailExtPtr
	case clapdefs.ExtGUI:
		ptr = w.hostGUIExtPtr
	case clapdefs.ExtWebview:
		ptr = w.hostWebviewExtPtr
	case clapdefs.ExtLog:
		ptr = w.hostLogExtPtr
	}
	return guest.I32Value(ptr)
}

// trampolineRequestRestart implements clap_host.request_restart: wclap
// has no transport to schedule a restart against, so it only logs.
func (w *HostedWclap) trampolineRequestRestart(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	w.log.Debug().Uint32("plugin", indexOf(p)).Msg("request_restart")
	return guest.I32Value(0)
}

// trampolineRequestProcess implements clap_host.request_process: the
// embedding application drives its own process loop, so this only logs.
func (w *HostedWclap) trampolineRequestProcess(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	w.log.Debug().Uint32("plugin", indexOf(p)).Msg("request_process")
	return guest.I32Value(0)
}

// trampolineRequestCallback implements clap_host.request_callback: it
// marks a main-thread callback pending; HostedPlugin.MainThread consumes
// the flag and calls plugin.on_main_thread exactly once for it.
func (w *HostedWclap) trampolineRequestCallback(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	if p := w.pluginFromHostPtr(ctx, args[0].I32); p != nil {
		p.mainThreadPending.Store(true)
	}
	return guest.I32Value(0)
}

// trampolineParamsRescan implements clap_host_params.rescan(host, flags),
// forwarding to the embedding application's ParamsRescan hook.
func (w *HostedWclap) trampolineParamsRescan(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	if p == nil {
		return guest.I32Value(0)
	}
	ok, err := w.env.ParamsRescan(ctx, p.index, args[1].I32)
	if err != nil {
		w.log.Warn().Err(err).Msg("params_rescan hook failed")
		return guest.I32Value(0)
	}
	return guest.I32Value(boolU32(ok))
}

// trampolineParamsClear implements clap_host_params.clear(host, param_id,
// flags): no caller currently needs to react to this, so it only logs.
func (w *HostedWclap) trampolineParamsClear(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	w.log.Debug().Uint32("plugin", indexOf(p)).Uint32("param_id", args[1].I32).Msg("params_clear")
	return guest.I32Value(0)
}

// trampolineStateMarkDirty implements clap_host_state.mark_dirty(host),
// forwarding to the embedding application's StateMarkDirty hook.
func (w *HostedWclap) trampolineStateMarkDirty(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	if p == nil {
		return guest.I32Value(0)
	}
	ok, err := w.env.StateMarkDirty(ctx, p.index)
	if err != nil {
		w.log.Warn().Err(err).Msg("state_mark_dirty hook failed")
		return guest.I32Value(0)
	}
	return guest.I32Value(boolU32(ok))
}

// trampolineLatencyChanged implements clap_host_latency.changed(host):
// wclap never caches a plug-in's reported latency, so there's nothing to
// invalidate; this only logs.
func (w *HostedWclap) trampolineLatencyChanged(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	w.log.Debug().Uint32("plugin", indexOf(p)).Msg("latency_changed")
	return guest.I32Value(0)
}

// trampolineAudioPortsIsRescanSupported implements
// clap_host_audio_ports.is_rescan_flag_supported: wclap doesn't support
// dynamic re-layout of a running plug-in's ports, so every flag reports
// unsupported.
func (w *HostedWclap) trampolineAudioPortsIsRescanSupported(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	return guest.I32Value(0)
}

// trampolineAudioPortsRescan implements clap_host_audio_ports.rescan:
// since is_rescan_flag_supported always reports false, a well-behaved
// plug-in never reaches this; it only logs.
func (w *HostedWclap) trampolineAudioPortsRescan(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	w.log.Warn().Uint32("plugin", indexOf(p)).Msg("audio_ports_rescan requested despite unsupported rescan flags")
	return guest.I32Value(0)
}

// trampolineNotePortsSupportedDialects implements
// clap_host_note_ports.supported_dialects: wclap forwards raw MIDI only.
func (w *HostedWclap) trampolineNotePortsSupportedDialects(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	return guest.I32Value(0)
}

// trampolineNotePortsRescan implements clap_host_note_ports.rescan: logs
// only, matching the audio-ports rescan handler.
func (w *HostedWclap) trampolineNotePortsRescan(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	w.log.Debug().Uint32("plugin", indexOf(p)).Msg("note_ports_rescan")
	return guest.I32Value(0)
}

// trampolineTailChanged implements clap_host_tail.changed(host): wclap
// doesn't track plug-in tail length, so this only logs.
func (w *HostedWclap) trampolineTailChanged(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	w.log.Debug().Uint32("plugin", indexOf(p)).Msg("tail_changed")
	return guest.I32Value(0)
}

// trampolineGUIResizeHintsChanged implements
// clap_host_gui.resize_hints_changed(host): wclap has no native GUI
// surface, only the webview bridge, so this only logs.
func (w *HostedWclap) trampolineGUIResizeHintsChanged(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	w.log.Debug().Uint32("plugin", indexOf(p)).Msg("gui_resize_hints_changed")
	return guest.I32Value(0)
}

// trampolineGUIRequestResize implements clap_host_gui.request_resize:
// unsupported, the embedding application's webview frame owns its own
// sizing.
func (w *HostedWclap) trampolineGUIRequestResize(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	return guest.I32Value(0)
}

// trampolineGUIRequestShow implements clap_host_gui.request_show:
// unsupported for the same reason as request_resize.
func (w *HostedWclap) trampolineGUIRequestShow(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	return guest.I32Value(0)
}

// trampolineGUIRequestHide implements clap_host_gui.request_hide:
// unsupported for the same reason as request_resize.
func (w *HostedWclap) trampolineGUIRequestHide(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	return guest.I32Value(0)
}

// trampolineGUIClosed implements clap_host_gui.closed(host,
// was_destroyed): logs only.
func (w *HostedWclap) trampolineGUIClosed(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	w.log.Debug().Uint32("plugin", indexOf(p)).Uint32("was_destroyed", args[1].I32).Msg("gui_closed")
	return guest.I32Value(0)
}

// trampolineWebviewSend implements clap_host_webview.send(host, ptr,
// len), forwarding the raw message bytes to the embedding application's
// WebviewSend hook.
func (w *HostedWclap) trampolineWebviewSend(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	if p == nil {
		return guest.I32Value(0)
	}
	ok, err := w.env.WebviewSend(ctx, p.index, args[1].I32, args[2].I32)
	if err != nil {
		w.log.Warn().Err(err).Msg("webview_send hook failed")
		return guest.I32Value(0)
	}
	return guest.I32Value(boolU32(ok))
}

// trampolineInEventsSize implements clap_input_events.size(in_events):
// the number of events currently staged for this process()/flush() call.
func (w *HostedWclap) trampolineInEventsSize(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromCtxPtr(ctx, args[0].I32)
	if p == nil {
		return guest.I32Value(0)
	}
	return guest.I32Value(uint32(len(p.events.Copied())))
}

// trampolineInEventsGet implements clap_input_events.get(in_events,
// index): a null pointer for an out-of-range index, matching CLAP's
// "undefined behavior" contract with a safe default instead.
func (w *HostedWclap) trampolineInEventsGet(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromCtxPtr(ctx, args[0].I32)
	if p == nil {
		return guest.I32Value(0)
	}
	copied := p.events.Copied()
	idx := args[1].I32
	if idx >= uint32(len(copied)) {
		return guest.I32Value(0)
	}
	return guest.I32Value(copied[idx].Ptr)
}

// trampolineOutEventsTryPush implements
// clap_output_events.try_push(out_events, event): it reads the event's
// own size out of its header before forwarding the bytes to the
// embedding application's EventsOutTryPush hook, since that hook has no
// other way to know how much guest memory to read.
func (w *HostedWclap) trampolineOutEventsTryPush(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromCtxPtr(ctx, args[0].I32)
	if p == nil {
		return guest.I32Value(0)
	}
	eventPtr := args[1].I32
	size, err := guest.ReadU32(ctx, w.g, xptr.Pointer[uint32]{Offset: eventPtr})
	if err != nil {
		return guest.I32Value(0)
	}
	ok, err := w.env.EventsOutTryPush(ctx, p.index, eventPtr, size)
	if err != nil {
		w.log.Warn().Err(err).Msg("events_out_try_push hook failed")
		return guest.I32Value(0)
	}
	return guest.I32Value(boolU32(ok))
}

// trampolineIStreamRead implements clap_istream.read(istream, buf, size):
// it pulls up to size bytes out of the plug-in's state buffer (already
// locked by the outer state.Load call on this
// same call stack) and copies them into guest memory at buf.
func (w *HostedWclap) trampolineIStreamRead(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromCtxPtr(ctx, args[0].I32)
	if p == nil {
		return guest.I64Value(^uint64(0))
	}
	bufPtr := args[1].I32
	size := args[2].I64
	host := make([]byte, size)
	n := p.stateBuf.ReadChunkLocked(host)
	if n > 0 {
		if err := w.g.Write(ctx, bufPtr, host[:n]); err != nil {
			return guest.I64Value(^uint64(0))
		}
	}
	return guest.I64Value(uint64(n))
}

// trampolineOStreamWrite implements clap_ostream.write(ostream, buf,
// size): it copies size bytes out of guest memory at buf and appends
// them to the plug-in's state buffer (already locked by the outer
// state.Save/webview.GetResourceResult call on this same call stack).
func (w *HostedWclap) trampolineOStreamWrite(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromCtxPtr(ctx, args[0].I32)
	if p == nil {
		return guest.I64Value(^uint64(0))
	}
	bufPtr := args[1].I32
	size := args[2].I64
	host := make([]byte, size)
	if err := w.g.Read(ctx, bufPtr, host); err != nil {
		return guest.I64Value(^uint64(0))
	}
	n := p.stateBuf.WriteChunkLocked(host)
	return guest.I64Value(uint64(n))
}

// maxLogMessageLen bounds how far trampolineLog scans for a message's
// terminating NUL, matching the descriptor-string scan caps elsewhere in
// this package.
const maxLogMessageLen = 4096

// trampolineLog implements clap_host_log.log(host, severity, msg): msg is
// a NUL-terminated C string, so its length is measured before forwarding
// it (and its severity, and the plug-in it came from) to the embedding
// application's Log hook.
func (w *HostedWclap) trampolineLog(ctx context.Context, args []guest.TaggedValue) guest.TaggedValue {
	p := w.pluginFromHostPtr(ctx, args[0].I32)
	if p == nil {
		return guest.I32Value(0)
	}
	msgPtr := args[2].I32
	n, err := w.g.CountUntil(ctx, msgPtr, 1, []byte{0}, maxLogMessageLen)
	if err != nil {
		return guest.I32Value(0)
	}
	ok, err := w.env.Log(ctx, p.index, int32(args[1].I32), msgPtr, n)
	if err != nil {
		w.log.Warn().Err(err).Msg("log hook failed")
		return guest.I32Value(0)
	}
	return guest.I32Value(boolU32(ok))
}

func indexOf(p *HostedPlugin) uint32 {
	if p == nil {
		return 0
	}
	return p.index
}
