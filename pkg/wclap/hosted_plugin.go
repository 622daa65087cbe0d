package wclap

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/justyntemme/wclaphost/pkg/arena"
	"github.com/justyntemme/wclaphost/pkg/audioports"
	"github.com/justyntemme/wclaphost/pkg/cborcodec"
	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/event"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/param"
	"github.com/justyntemme/wclaphost/pkg/state"
	"github.com/justyntemme/wclaphost/pkg/webview"
	"github.com/justyntemme/wclaphost/pkg/xptr"
)

// HostedPlugin wraps one plug-in instance created out of a HostedWclap's
// factory: its own arena, its pending/copied event queue, its state
// stream buffer, and whichever of the four extensions it reported
// implementing.
type HostedPlugin struct {
	w   *HostedWclap
	g   guest.Instance
	log zerolog.Logger

	index     uint32
	ownership arena.Ownership
	arena     *arena.Arena

	// audioScope is reset at the start of every start() call and holds
	// the audio-port buffers and the process struct until the next
	// start(). Per-process() event copies do NOT land here; they go into
	// their own nested scope released when the call returns, so a long
	// session's event stream never grows the arena.
	audioScope *arena.Scoped

	pluginPtr uint32
	fns       pluginFns

	hostPtr      uint32
	inEventsPtr  uint32
	outEventsPtr uint32
	istreamPtr   uint32
	ostreamPtr   uint32

	events   *event.Queue
	stateBuf *state.Buffer

	paramsExt     *param.Extension
	stateExt      *state.Extension
	audioPortsExt *audioports.Extension
	webviewExt    *webview.Extension

	processPtr uint32
	processing bool

	mainThreadPending atomic.Bool
}

// extensionIDs lists the plug-in-side extensions wclap's own operations
// actually call into; clap.gui/clap.latency/clap.note-ports/clap.tail
// are only ever called from the guest toward the host (the host-side
// tables in HostedWclap), never the other way, so there is nothing to
// discover for them here.
var extensionIDs = []string{clapdefs.ExtParams, clapdefs.ExtState, clapdefs.ExtAudioPorts, clapdefs.ExtWebview}

// init drives the freshly created plug-in's own init() and then
// discovers whichever of the four consumed extensions it implements.
func (p *HostedPlugin) init(ctx context.Context) error {
	fns, err := bindPluginFns(ctx, p.g, p.pluginPtr)
	if err != nil {
		return err
	}
	p.fns = fns

	res, err := p.g.Call(ctx, p.fns.init, guest.I32Value(p.pluginPtr))
	if err != nil {
		return fmt.Errorf("plugin.init: %w", err)
	}
	if res.I32 == 0 {
		return ErrPluginInitFailed
	}

	for _, id := range extensionIDs {
		extPtr, err := p.getExtension(ctx, id)
		if err != nil {
			return err
		}
		if extPtr == 0 {
			continue
		}
		switch id {
		case clapdefs.ExtParams:
			if p.paramsExt, err = param.Bind(ctx, p.g, p.pluginPtr, extPtr); err != nil {
				return err
			}
		case clapdefs.ExtState:
			if p.stateExt, err = state.Bind(ctx, p.g, p.pluginPtr, extPtr); err != nil {
				return err
			}
		case clapdefs.ExtAudioPorts:
			if p.audioPortsExt, err = audioports.Bind(ctx, p.g, p.pluginPtr, extPtr); err != nil {
				return err
			}
		case clapdefs.ExtWebview:
			if p.webviewExt, err = webview.Bind(ctx, p.g, p.pluginPtr, extPtr); err != nil {
				return err
			}
		}
	}
	return nil
}

// getExtension calls plugin.get_extension(id), writing the id string
// into the plug-in's own permanent arena (not a released scope, since
// this only runs once per extension at construction).
func (p *HostedPlugin) getExtension(ctx context.Context, id string) (uint32, error) {
	idPtr, err := guest.WriteCString(ctx, p.g, func(_ context.Context, size uint32) (uint32, error) {
		return p.arena.Alloc(size)
	}, id)
	if err != nil {
		return 0, fmt.Errorf("plugin.get_extension: write id: %w", err)
	}
	res, err := p.g.Call(ctx, p.fns.getExtension, guest.I32Value(p.pluginPtr), guest.I32Value(idPtr))
	if err != nil {
		return 0, fmt.Errorf("plugin.get_extension(%s): %w", id, err)
	}
	return res.I32, nil
}

// GetInfo implements get_info for one plug-in: its descriptor and, if it
// implements clap.webview, the GUI frame's URI.
func (p *HostedPlugin) GetInfo(ctx context.Context) (cborcodec.PluginInfo, error) {
	descPtr, err := guest.ReadU32(ctx, p.g, xptr.Pointer[uint32]{Offset: p.pluginPtr + clapdefs.PluginLayout.Desc})
	if err != nil {
		return cborcodec.PluginInfo{}, fmt.Errorf("plugin: read desc pointer: %w", err)
	}
	desc, err := readDescriptor(ctx, p.g, descPtr)
	if err != nil {
		return cborcodec.PluginInfo{}, err
	}

	scope := p.arena.Scope()
	defer scope.Release()
	uri, err := webview.ReadURI(ctx, p.g, scope, p.webviewExt)
	if err != nil {
		return cborcodec.PluginInfo{}, err
	}

	info := cborcodec.PluginInfo{Desc: desc}
	if uri != "" {
		info.Webview = &uri
	}
	return info, nil
}

// GetParams implements get_params. A plug-in with no clap.params
// extension reports an empty list, not an error.
func (p *HostedPlugin) GetParams(ctx context.Context) ([]cborcodec.ParamInfo, error) {
	if p.paramsExt == nil {
		return nil, nil
	}
	scope := p.arena.Scope()
	defer scope.Release()
	return param.GetParams(ctx, p.g, scope, p.paramsExt)
}

// GetParam implements get_param(id). A plug-in without a clap.params
// extension yields ErrNoParamsExtension (the caller emits null); a
// get_value failure yields ok=false (the caller emits
// cborcodec.ParamValueFailedMessage).
func (p *HostedPlugin) GetParam(ctx context.Context, id uint32) (ok bool, out cborcodec.ParamValue, err error) {
	if p.paramsExt == nil {
		return false, cborcodec.ParamValue{}, ErrNoParamsExtension
	}
	scope := p.arena.Scope()
	defer scope.Release()
	return param.GetParam(ctx, p.g, scope, p.paramsExt, id)
}

// SetParam implements set_param(id, value): it enqueues a PARAM_VALUE
// event directly, bypassing accept_event's forwardable-type filter,
// since set_param's whole purpose is to inject a param change.
func (p *HostedPlugin) SetParam(id uint32, value float64) {
	p.events.AddEvent(param.NewSetParamEvent(id, value))
}

// ParamsFlush implements params_flush: allowed on the main thread only
// while not processing, per the concurrency contract; process() drives
// its own flush internally via the plug-in's process() call instead.
func (p *HostedPlugin) ParamsFlush(ctx context.Context) error {
	if p.paramsExt == nil {
		return nil
	}
	scope := p.arena.Scope()
	defer scope.Release()
	return param.Flush(ctx, p.g, scope, p.paramsExt, p.events, p.index, p.w.inEventsSizeFn, p.w.inEventsGetFn, p.w.outEventsTryPushFn)
}

// Start implements start(sample_rate, min_frames, max_frames): activates
// and starts processing the plug-in, resets the audio-thread arena scope,
// builds the audio port buffers, and lays out the process struct the
// subsequent process() calls reuse.
func (p *HostedPlugin) Start(ctx context.Context, sampleRate float64, minFrames, maxFrames uint32) (cborcodec.StartLayout, error) {
	// Start is the first guest call the audio thread makes; give the
	// guest runtime a chance to set up its thread-local state first.
	if err := p.g.InitThread(ctx); err != nil {
		p.log.Warn().Err(err).Msg("guest thread init failed")
	}

	if res, err := p.g.Call(ctx, p.fns.activate, guest.I32Value(p.pluginPtr), guest.F64Value(sampleRate), guest.I32Value(minFrames), guest.I32Value(maxFrames)); err != nil {
		return cborcodec.StartLayout{}, fmt.Errorf("plugin.activate: %w", err)
	} else if res.I32 == 0 {
		return cborcodec.StartLayout{}, ErrActivateFailed
	}
	if res, err := p.g.Call(ctx, p.fns.startProcessing, guest.I32Value(p.pluginPtr)); err != nil {
		return cborcodec.StartLayout{}, fmt.Errorf("plugin.start_processing: %w", err)
	} else if res.I32 == 0 {
		return cborcodec.StartLayout{}, ErrStartProcessingFailed
	}

	p.audioScope.Release()
	p.processing = true

	inputs, err := audioports.Build(ctx, p.g, p.audioScope, p.audioPortsExt, true, maxFrames)
	if err != nil {
		return cborcodec.StartLayout{}, err
	}
	outputs, err := audioports.Build(ctx, p.g, p.audioScope, p.audioPortsExt, false, maxFrames)
	if err != nil {
		return cborcodec.StartLayout{}, err
	}

	processPtr, err := p.writeProcessStruct(ctx, inputs, outputs)
	if err != nil {
		return cborcodec.StartLayout{}, err
	}
	p.processPtr = processPtr

	return cborcodec.StartLayout{Inputs: inputs.Channels, Outputs: outputs.Channels}, nil
}

func (p *HostedPlugin) writeProcessStruct(ctx context.Context, inputs, outputs audioports.Ports) (uint32, error) {
	l := clapdefs.ProcessLayout
	buf := make([]byte, clapdefs.ProcessSize)
	binary.LittleEndian.PutUint64(buf[l.SteadyTime:l.SteadyTime+8], ^uint64(0))
	binary.LittleEndian.PutUint32(buf[l.Transport:l.Transport+4], 0)
	binary.LittleEndian.PutUint32(buf[l.AudioInputs:l.AudioInputs+4], inputs.BuffersPtr)
	binary.LittleEndian.PutUint32(buf[l.AudioOutputs:l.AudioOutputs+4], outputs.BuffersPtr)
	binary.LittleEndian.PutUint32(buf[l.AudioInputsCount:l.AudioInputsCount+4], uint32(len(inputs.Channels)))
	binary.LittleEndian.PutUint32(buf[l.AudioOutputsCount:l.AudioOutputsCount+4], uint32(len(outputs.Channels)))
	binary.LittleEndian.PutUint32(buf[l.InEvents:l.InEvents+4], p.inEventsPtr)
	binary.LittleEndian.PutUint32(buf[l.OutEvents:l.OutEvents+4], p.outEventsPtr)

	off, err := p.audioScope.Alloc(uint32(len(buf)))
	if err != nil {
		return 0, fmt.Errorf("plugin: allocate process struct: %w", err)
	}
	if err := p.g.Write(ctx, off, buf); err != nil {
		return 0, fmt.Errorf("plugin: write process struct: %w", err)
	}
	return off, nil
}

// Process implements process(block_length): pops every pending event
// into a scope on the audio-thread arena, writes block_length into the
// process struct, calls plugin.process, and always clears the
// copied-event list afterward regardless of whether the plug-in
// consumed every one. The event scope nests above audioScope's
// persistent buffers and is released when the call returns, keeping
// the arena at its start()-time size no matter how long the session
// runs.
func (p *HostedPlugin) Process(ctx context.Context, blockLength uint32) (int32, error) {
	if !p.processing {
		return clapdefs.ProcessError, ErrNotStarted
	}

	scope := p.arena.Scope()
	defer scope.Release()

	copied, err := p.events.CopyPending(ctx, p.g, scope)
	if err != nil {
		return clapdefs.ProcessError, err
	}
	p.events.SetCopied(copied)
	defer p.events.ClearCopied()

	l := clapdefs.ProcessLayout
	if err := guest.WriteU32(ctx, p.g, xptr.Pointer[uint32]{Offset: p.processPtr + l.FramesCount}, blockLength); err != nil {
		return clapdefs.ProcessError, fmt.Errorf("plugin: write frames_count: %w", err)
	}

	res, err := p.g.Call(ctx, p.fns.process, guest.I32Value(p.pluginPtr), guest.I32Value(p.processPtr))
	if err != nil {
		return clapdefs.ProcessError, fmt.Errorf("plugin.process: %w", err)
	}
	return int32(res.I32), nil
}

// Stop implements stop(): stop_processing then deactivate, in that
// order, matching CLAP's required activation lifecycle.
func (p *HostedPlugin) Stop(ctx context.Context) error {
	if _, err := p.g.Call(ctx, p.fns.stopProcessing, guest.I32Value(p.pluginPtr)); err != nil {
		return fmt.Errorf("plugin.stop_processing: %w", err)
	}
	if _, err := p.g.Call(ctx, p.fns.deactivate, guest.I32Value(p.pluginPtr)); err != nil {
		return fmt.Errorf("plugin.deactivate: %w", err)
	}
	p.processing = false
	return nil
}

// AcceptEvent implements accept_event(bytes): it decodes just the raw
// header, checks the type against the forwardable set, and on success
// enqueues the full raw event. A rejected event is dropped silently, the
// same way set_param's own PARAM_VALUE event bypasses this path
// entirely rather than going through it.
func (p *HostedPlugin) AcceptEvent(raw []byte) bool {
	if uint32(len(raw)) < clapdefs.HeaderSize {
		return false
	}
	h := event.DecodeHeader(raw)
	if !event.AcceptEvent(h.Type) {
		return false
	}
	p.events.AddEvent(raw)
	return true
}

// SaveState implements save_state.
func (p *HostedPlugin) SaveState(ctx context.Context) ([]byte, error) {
	if p.stateExt == nil {
		return nil, ErrNoStateExtension
	}
	return state.Save(ctx, p.g, p.stateBuf, p.stateExt, p.ostreamPtr)
}

// LoadState implements load_state.
func (p *HostedPlugin) LoadState(ctx context.Context, data []byte) (bool, error) {
	if p.stateExt == nil {
		return false, ErrNoStateExtension
	}
	return state.Load(ctx, p.g, p.stateBuf, p.stateExt, p.istreamPtr, data)
}

// Message implements message(bytes): a no-op if the plug-in has no
// webview extension.
func (p *HostedPlugin) Message(ctx context.Context, data []byte) error {
	scope := p.arena.Scope()
	defer scope.Release()
	return webview.Message(ctx, p.g, scope, p.webviewExt, data)
}

// GetResource implements get_resource(path).
func (p *HostedPlugin) GetResource(ctx context.Context, path string) (*cborcodec.Resource, error) {
	scope := p.arena.Scope()
	defer scope.Release()
	return webview.GetResourceResult(ctx, p.g, scope, p.stateBuf, p.webviewExt, p.ostreamPtr, path)
}

// MainThread implements plugin_main_thread: it atomically consumes a
// pending request_callback (test-and-clear), invoking plugin.on_main_thread
// exactly once if one was pending, or doing nothing otherwise.
func (p *HostedPlugin) MainThread(ctx context.Context) error {
	if !p.mainThreadPending.CompareAndSwap(true, false) {
		return nil
	}
	if _, err := p.g.Call(ctx, p.fns.onMainThread, guest.I32Value(p.pluginPtr)); err != nil {
		return fmt.Errorf("plugin.on_main_thread: %w", err)
	}
	return nil
}

// Destroy implements destroy_plugin: it tears the plug-in down through
// the HostedWclap that created it, releasing its arena and registry slot.
// A HostedPlugin is not usable after Destroy returns.
func (p *HostedPlugin) Destroy(ctx context.Context) {
	p.w.RemovePlugin(ctx, p)
}
