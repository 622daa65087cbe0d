// Package wclap implements the bridge core: HostedWclap stands up one
// guest module (a single clap_plugin_entry), and HostedPlugin wraps one
// plug-in instance created out of that entry's factory. Every exported
// operation here marshals guest memory rather than owning plug-in state
// itself; params, audio buffers, and GUI/state bytes all live on the
// guest side, the same way pkg/param, pkg/state and pkg/audioports are
// built never to cache a value across calls.
package wclap

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/justyntemme/wclaphost/pkg/arena"
	"github.com/justyntemme/wclaphost/pkg/cborcodec"
	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/event"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/state"
	"github.com/justyntemme/wclaphost/pkg/wlog"
	"github.com/justyntemme/wclaphost/pkg/wregistry"
	"github.com/justyntemme/wclaphost/pkg/xptr"

	"github.com/rs/zerolog"
)

// clapVersion is the CLAP version wclap always reports itself (and its
// host descriptor) under.
var clapVersion = cborcodec.ClapVersion{1, 2, 7}

const pluginFactoryID = "clap.plugin-factory"

// DefaultPluginArenaSize is the per-plug-in arena size HostedWclap uses
// when a caller doesn't override it: generous enough for the host/event
// object copies, a handful of audio ports at a few thousand frames
// each, and one process() call's worth of copied events on top (event
// copies live in a per-call scope reclaimed when the call returns, so
// session length never factors into the size).
const DefaultPluginArenaSize = 4 << 20

// HostedWclap owns one guest module instance and every plug-in created
// out of its factory.
type HostedWclap struct {
	g   guest.Instance
	env *EnvImports
	log zerolog.Logger

	pluginPool *arena.Pool
	plugins    *wregistry.IndexLookup[HostedPlugin]

	entryPtr   uint32
	factoryPtr uint32

	// Shared host descriptor fields, valid for the process's whole
	// lifetime and reused, unchanged, by every plug-in's copy of the
	// host descriptor.
	hostNamePtr    uint32
	hostVendorPtr  uint32
	hostURLPtr     uint32
	hostVersionPtr uint32

	// Host-side extension function tables, built once and shared by
	// every plug-in (they carry no per-plugin ctx field of their own;
	// routing happens through host_data on the clap_host_t they're
	// reached from).
	hostParamsExtPtr     uint32
	hostStateExtPtr      uint32
	hostLatencyExtPtr    uint32
	hostAudioPortsExtPtr uint32
	hostNotePortsExtPtr  uint32
	hostTailExtPtr       uint32
	hostGUIExtPtr        uint32
	hostWebviewExtPtr    uint32
	hostLogExtPtr        uint32

	// Guest-callable trampoline function-table indices, shared across
	// every plug-in HostedWclap owns.
	hostGetExtensionFn    uint32
	hostRequestRestartFn  uint32
	hostRequestProcessFn  uint32
	hostRequestCallbackFn uint32
	inEventsSizeFn        uint32
	inEventsGetFn         uint32
	outEventsTryPushFn    uint32
	istreamReadFn         uint32
	ostreamWriteFn        uint32
	paramsRescanFn        uint32
	paramsClearFn         uint32
	stateMarkDirtyFn      uint32
	latencyChangedFn      uint32
	audioPortsIsRescanFn  uint32
	audioPortsRescanFn    uint32
	notePortsSupportedFn  uint32
	notePortsRescanFn     uint32
	tailChangedFn         uint32
	guiResizeHintsFn      uint32
	guiRequestResizeFn    uint32
	guiRequestShowFn      uint32
	guiRequestHideFn      uint32
	guiClosedFn           uint32
	webviewSendFn         uint32
	logFn                 uint32
}

// New stands up a HostedWclap over an already-constructed guest.Instance:
// it registers every host trampoline, builds the host descriptor strings
// and the nine host-side extension tables, then drives the guest's own
// init and factory lookup. env may be nil, in which case NopEnvImports
// is used.
func New(ctx context.Context, g guest.Instance, env *EnvImports) (*HostedWclap, error) {
	return NewWithArenaSize(ctx, g, env, DefaultPluginArenaSize)
}

// NewWithArenaSize is New with an explicit per-plugin arena size,
// exposed for callers (and tests) that need to bound or inflate it.
func NewWithArenaSize(ctx context.Context, g guest.Instance, env *EnvImports, pluginArenaSize uint32) (*HostedWclap, error) {
	if env == nil {
		env = NopEnvImports()
	}

	w := &HostedWclap{
		g:          g,
		env:        env,
		log:        wlog.New("wclap"),
		pluginPool: arena.NewPool(pluginArenaSize),
		plugins:    wregistry.New[HostedPlugin](),
	}

	if err := w.registerTrampolines(ctx); err != nil {
		return nil, fmt.Errorf("wclap: register trampolines: %w", err)
	}
	if err := w.buildHostDescriptorStrings(ctx); err != nil {
		return nil, fmt.Errorf("wclap: build host descriptor strings: %w", err)
	}
	if err := w.buildHostExtensionTables(ctx); err != nil {
		return nil, fmt.Errorf("wclap: build host extension tables: %w", err)
	}

	entryPtr, err := g.Init(ctx)
	if err != nil {
		if errors.Is(err, guest.ErrNotSupported64) {
			return nil, fmt.Errorf("wclap: %w", err)
		}
		return nil, fmt.Errorf("wclap: guest init failed: %w", err)
	}
	if entryPtr == 0 {
		return nil, guest.ErrNoEntry
	}
	w.entryPtr = entryPtr

	major, err := guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: entryPtr + clapdefs.PluginEntryLayout.VersionMajor})
	if err != nil {
		return nil, fmt.Errorf("wclap: read entry version: %w", err)
	}
	_ = major // the entry's reported CLAP version isn't surfaced separately; wclap only supports 1.x guests.

	initFn, err := guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: entryPtr + clapdefs.PluginEntryLayout.Init})
	if err != nil {
		return nil, fmt.Errorf("wclap: read entry.init: %w", err)
	}
	pathPtr, err := scratchCString(ctx, g, w.g.Malloc, g.Path())
	if err != nil {
		return nil, fmt.Errorf("wclap: write resource path: %w", err)
	}
	if ok, err := g.Call(ctx, initFn, guest.I32Value(pathPtr)); err != nil {
		return nil, fmt.Errorf("wclap: entry.init: %w", err)
	} else if ok.I32 == 0 {
		return nil, errors.New("wclap: entry.init returned false")
	}

	if err := w.refreshFactory(ctx); err != nil {
		w.log.Error().Err(err).Msg("get_factory failed at construction; plugin list will be empty until a later call succeeds")
	}

	return w, nil
}

// refreshFactory re-fetches entry.get_factory("clap.plugin-factory") and
// caches the result. Called once at construction, and again defensively
// whenever the cached pointer is found to be null.
func (w *HostedWclap) refreshFactory(ctx context.Context) error {
	getFactoryFn, err := guest.ReadU32(ctx, w.g, xptr.Pointer[uint32]{Offset: w.entryPtr + clapdefs.PluginEntryLayout.GetFactory})
	if err != nil {
		return fmt.Errorf("wclap: read entry.get_factory: %w", err)
	}
	idPtr, err := scratchCString(ctx, w.g, w.g.Malloc, pluginFactoryID)
	if err != nil {
		return fmt.Errorf("wclap: write factory id: %w", err)
	}
	res, err := w.g.Call(ctx, getFactoryFn, guest.I32Value(idPtr))
	if err != nil {
		return fmt.Errorf("wclap: entry.get_factory: %w", err)
	}
	w.factoryPtr = res.I32
	if w.factoryPtr == 0 {
		return errors.New("wclap: entry.get_factory returned null")
	}
	return nil
}

// ensureFactory returns the cached factory pointer, re-validating it is
// non-null and attempting one refresh if it has gone stale, rather than
// re-fetching it fresh on every call the way the upstream reference host
// does.
func (w *HostedWclap) ensureFactory(ctx context.Context) (uint32, error) {
	if w.factoryPtr != 0 {
		return w.factoryPtr, nil
	}
	if err := w.refreshFactory(ctx); err != nil {
		return 0, ErrNoFactory
	}
	return w.factoryPtr, nil
}

// GetInfo implements get_info: the clap version, the guest's resource
// path, and every plug-in descriptor the factory reports. A factory
// lookup failure degrades to an empty plugin list rather than an error,
// per the defensive-default convention every read-only query follows.
func (w *HostedWclap) GetInfo(ctx context.Context) (cborcodec.WclapInfo, error) {
	info := cborcodec.WclapInfo{ClapVersion: clapVersion, Path: w.g.Path()}

	factory, err := w.ensureFactory(ctx)
	if err != nil {
		w.log.Warn().Err(err).Msg("get_info: no factory; reporting empty plugin list")
		return info, nil
	}

	countFn, err := guest.ReadU32(ctx, w.g, xptr.Pointer[uint32]{Offset: factory + clapdefs.PluginFactoryLayout.GetPluginCount})
	if err != nil {
		return info, fmt.Errorf("wclap: read factory.get_plugin_count: %w", err)
	}
	descFn, err := guest.ReadU32(ctx, w.g, xptr.Pointer[uint32]{Offset: factory + clapdefs.PluginFactoryLayout.GetPluginDescriptor})
	if err != nil {
		return info, fmt.Errorf("wclap: read factory.get_plugin_descriptor: %w", err)
	}

	countRes, err := w.g.Call(ctx, countFn, guest.I32Value(factory))
	if err != nil {
		return info, fmt.Errorf("wclap: factory.get_plugin_count: %w", err)
	}

	for i := uint32(0); i < countRes.I32; i++ {
		res, err := w.g.Call(ctx, descFn, guest.I32Value(factory), guest.I32Value(i))
		if err != nil {
			return info, fmt.Errorf("wclap: factory.get_plugin_descriptor(%d): %w", i, err)
		}
		if res.I32 == 0 {
			continue
		}
		desc, err := readDescriptor(ctx, w.g, res.I32)
		if err != nil {
			w.log.Warn().Err(err).Uint32("index", i).Msg("get_info: skipping unreadable plugin descriptor")
			continue
		}
		info.Plugins = append(info.Plugins, desc)
	}
	return info, nil
}

// CreatePlugin implements create_plugin(id): it acquires a fresh
// per-plugin arena, copies the host descriptor and the four
// context-bearing objects into it, calls the factory's create_plugin,
// and on success drives the new plug-in's own init (which in turn
// discovers its extensions).
func (w *HostedWclap) CreatePlugin(ctx context.Context, pluginID string) (*HostedPlugin, error) {
	factory, err := w.ensureFactory(ctx)
	if err != nil {
		return nil, err
	}
	createFn, err := guest.ReadU32(ctx, w.g, xptr.Pointer[uint32]{Offset: factory + clapdefs.PluginFactoryLayout.CreatePlugin})
	if err != nil {
		return nil, fmt.Errorf("wclap: read factory.create_plugin: %w", err)
	}

	ownership, err := w.pluginPool.GetOrCreate(ctx, w.g)
	if err != nil {
		return nil, fmt.Errorf("wclap: create_plugin: acquire arena: %w", err)
	}
	a := ownership.Arena()
	scope := a.Scope()

	hostPtr, err := w.writeHostDescriptor(ctx, scope)
	if err != nil {
		ownership.Release()
		return nil, err
	}
	inEventsPtr, err := event.WriteInEvents(ctx, w.g, scope, 0, w.inEventsSizeFn, w.inEventsGetFn)
	if err != nil {
		ownership.Release()
		return nil, fmt.Errorf("wclap: create_plugin: write in_events: %w", err)
	}
	outEventsPtr, err := event.WriteOutEvents(ctx, w.g, scope, 0, w.outEventsTryPushFn)
	if err != nil {
		ownership.Release()
		return nil, fmt.Errorf("wclap: create_plugin: write out_events: %w", err)
	}
	istreamPtr, err := w.writeIStream(ctx, scope)
	if err != nil {
		ownership.Release()
		return nil, err
	}
	ostreamPtr, err := w.writeOStream(ctx, scope)
	if err != nil {
		ownership.Release()
		return nil, err
	}
	idPtr, err := scope.WriteString(ctx, w.g, pluginID)
	if err != nil {
		ownership.Release()
		return nil, fmt.Errorf("wclap: create_plugin: write id: %w", err)
	}

	res, err := w.g.Call(ctx, createFn, guest.I32Value(factory), guest.I32Value(hostPtr), guest.I32Value(idPtr))
	if err != nil {
		ownership.Release()
		return nil, fmt.Errorf("wclap: factory.create_plugin: %w", err)
	}
	if res.I32 == 0 {
		ownership.Release()
		return nil, ErrPluginCreateFailed
	}

	p := &HostedPlugin{
		w:            w,
		g:            w.g,
		ownership:    ownership,
		arena:        a,
		pluginPtr:    res.I32,
		hostPtr:      hostPtr,
		inEventsPtr:  inEventsPtr,
		outEventsPtr: outEventsPtr,
		istreamPtr:   istreamPtr,
		ostreamPtr:   ostreamPtr,
		events:       event.NewQueue(),
		stateBuf:     state.NewBuffer(),
		log:          wlog.New("plugin"),
	}
	p.index = w.plugins.Retain(p)

	for _, wr := range [...]struct{ ptr, off uint32 }{
		{hostPtr, clapdefs.HostLayout.HostData},
		{inEventsPtr, clapdefs.InEventsLayout.Ctx},
		{outEventsPtr, clapdefs.OutEventsLayout.Ctx},
		{istreamPtr, clapdefs.IStreamLayout.Ctx},
		{ostreamPtr, clapdefs.OStreamLayout.Ctx},
	} {
		if err := guest.WriteU32(ctx, w.g, xptr.Pointer[uint32]{Offset: wr.ptr + wr.off}, p.index); err != nil {
			w.plugins.Release(p.index)
			ownership.Release()
			return nil, fmt.Errorf("wclap: create_plugin: write ctx index: %w", err)
		}
	}

	if err := p.init(ctx); err != nil {
		w.plugins.Release(p.index)
		ownership.Release()
		return nil, fmt.Errorf("wclap: create_plugin: %w", err)
	}

	p.audioScope = a.Scope()
	return p, nil
}

// RemovePlugin releases a plug-in's registry slot and returns its arena
// to the pool. The caller must not use p again afterwards.
func (w *HostedWclap) RemovePlugin(ctx context.Context, p *HostedPlugin) {
	if fns, err := bindPluginFns(ctx, w.g, p.pluginPtr); err == nil {
		if _, err := w.g.Call(ctx, fns.destroy, guest.I32Value(p.pluginPtr)); err != nil {
			w.log.Warn().Err(err).Msg("remove_plugin: plugin.destroy failed")
		}
	}
	w.plugins.Release(p.index)
	p.ownership.Release()
}

// Close tears the hosted guest down: entry.deinit first (New only
// returns a HostedWclap after entry.init succeeded, so deinit is owed),
// then the guest instance itself. Plug-ins still registered must be
// destroyed by their owner before this; Close does not chase them. The
// HostedWclap is not usable after Close returns.
func (w *HostedWclap) Close(ctx context.Context) {
	deinitFn, err := guest.ReadU32(ctx, w.g, xptr.Pointer[uint32]{Offset: w.entryPtr + clapdefs.PluginEntryLayout.Deinit})
	if err == nil && deinitFn != 0 {
		if _, err := w.g.Call(ctx, deinitFn); err != nil {
			w.log.Warn().Err(err).Msg("entry.deinit failed")
		}
	}
	if err := w.g.Close(ctx); err != nil {
		w.log.Warn().Err(err).Msg("guest close failed")
	}
}

func (w *HostedWclap) buildHostDescriptorStrings(ctx context.Context) error {
	var err error
	if w.hostNamePtr, err = scratchCString(ctx, w.g, w.g.Malloc, "wclaphost"); err != nil {
		return err
	}
	if w.hostVendorPtr, err = scratchCString(ctx, w.g, w.g.Malloc, "wclaphost"); err != nil {
		return err
	}
	if w.hostURLPtr, err = scratchCString(ctx, w.g, w.g.Malloc, ""); err != nil {
		return err
	}
	if w.hostVersionPtr, err = scratchCString(ctx, w.g, w.g.Malloc, "0.1.0"); err != nil {
		return err
	}
	return nil
}

// writeHostDescriptor copies a fresh clap_host struct into scope, sharing
// the process-wide name/vendor/url/version strings and trampoline
// indices but leaving host_data to be overwritten with the plug-in's own
// registry index once it's known.
func (w *HostedWclap) writeHostDescriptor(ctx context.Context, scope *arena.Scoped) (uint32, error) {
	l := clapdefs.HostLayout
	buf := make([]byte, 48)
	binary.LittleEndian.PutUint32(buf[0:4], clapVersion[0])
	binary.LittleEndian.PutUint32(buf[4:8], clapVersion[1])
	binary.LittleEndian.PutUint32(buf[8:12], clapVersion[2])
	binary.LittleEndian.PutUint32(buf[l.HostData:l.HostData+4], 0)
	binary.LittleEndian.PutUint32(buf[l.Name:l.Name+4], w.hostNamePtr)
	binary.LittleEndian.PutUint32(buf[l.Vendor:l.Vendor+4], w.hostVendorPtr)
	binary.LittleEndian.PutUint32(buf[l.URL:l.URL+4], w.hostURLPtr)
	binary.LittleEndian.PutUint32(buf[l.Version:l.Version+4], w.hostVersionPtr)
	binary.LittleEndian.PutUint32(buf[l.GetExtension:l.GetExtension+4], w.hostGetExtensionFn)
	binary.LittleEndian.PutUint32(buf[l.RequestRestart:l.RequestRestart+4], w.hostRequestRestartFn)
	binary.LittleEndian.PutUint32(buf[l.RequestProcess:l.RequestProcess+4], w.hostRequestProcessFn)
	binary.LittleEndian.PutUint32(buf[l.RequestCallback:l.RequestCallback+4], w.hostRequestCallbackFn)

	off, err := scope.Alloc(uint32(len(buf)))
	if err != nil {
		return 0, fmt.Errorf("wclap: allocate host descriptor: %w", err)
	}
	if err := w.g.Write(ctx, off, buf); err != nil {
		return 0, fmt.Errorf("wclap: write host descriptor: %w", err)
	}
	return off, nil
}

func (w *HostedWclap) writeIStream(ctx context.Context, scope *arena.Scoped) (uint32, error) {
	l := clapdefs.IStreamLayout
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[l.Read:l.Read+4], w.istreamReadFn)
	off, err := scope.Alloc(uint32(len(buf)))
	if err != nil {
		return 0, fmt.Errorf("wclap: allocate istream: %w", err)
	}
	if err := w.g.Write(ctx, off, buf); err != nil {
		return 0, fmt.Errorf("wclap: write istream: %w", err)
	}
	return off, nil
}

func (w *HostedWclap) writeOStream(ctx context.Context, scope *arena.Scoped) (uint32, error) {
	l := clapdefs.OStreamLayout
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[l.Write:l.Write+4], w.ostreamWriteFn)
	off, err := scope.Alloc(uint32(len(buf)))
	if err != nil {
		return 0, fmt.Errorf("wclap: allocate ostream: %w", err)
	}
	if err := w.g.Write(ctx, off, buf); err != nil {
		return 0, fmt.Errorf("wclap: write ostream: %w", err)
	}
	return off, nil
}

// buildHostExtensionTables writes the nine host-side extension function
// tables once, shared by every plug-in this HostedWclap owns.
func (w *HostedWclap) buildHostExtensionTables(ctx context.Context) error {
	write := func(size uint32, fields map[uint32]uint32) (uint32, error) {
		ptr, err := w.g.Malloc(ctx, size)
		if err != nil {
			return 0, err
		}
		buf := make([]byte, size)
		for off, fn := range fields {
			binary.LittleEndian.PutUint32(buf[off:off+4], fn)
		}
		if err := w.g.Write(ctx, ptr, buf); err != nil {
			return 0, err
		}
		return ptr, nil
	}

	var err error
	if w.hostParamsExtPtr, err = write(8, map[uint32]uint32{
		clapdefs.HostParamsExtLayout.Rescan: w.paramsRescanFn,
		clapdefs.HostParamsExtLayout.Clear:  w.paramsClearFn,
	}); err != nil {
		return fmt.Errorf("wclap: build host params extension: %w", err)
	}
	if w.hostStateExtPtr, err = write(4, map[uint32]uint32{
		clapdefs.HostStateExtLayout.MarkDirty: w.stateMarkDirtyFn,
	}); err != nil {
		return fmt.Errorf("wclap: build host state extension: %w", err)
	}
	if w.hostLatencyExtPtr, err = write(4, map[uint32]uint32{
		clapdefs.HostLatencyExtLayout.Changed: w.latencyChangedFn,
	}); err != nil {
		return fmt.Errorf("wclap: build host latency extension: %w", err)
	}
	if w.hostAudioPortsExtPtr, err = write(8, map[uint32]uint32{
		clapdefs.HostAudioPortsExtLayout.IsRescanFlagSupported: w.audioPortsIsRescanFn,
		clapdefs.HostAudioPortsExtLayout.Rescan:                w.audioPortsRescanFn,
	}); err != nil {
		return fmt.Errorf("wclap: build host audio-ports extension: %w", err)
	}
	if w.hostNotePortsExtPtr, err = write(8, map[uint32]uint32{
		clapdefs.HostNotePortsExtLayout.SupportedDialects: w.notePortsSupportedFn,
		clapdefs.HostNotePortsExtLayout.Rescan:            w.notePortsRescanFn,
	}); err != nil {
		return fmt.Errorf("wclap: build host note-ports extension: %w", err)
	}
	if w.hostTailExtPtr, err = write(4, map[uint32]uint32{
		clapdefs.HostTailExtLayout.Changed: w.tailChangedFn,
	}); err != nil {
		return fmt.Errorf("wclap: build host tail extension: %w", err)
	}
	if w.hostGUIExtPtr, err = write(20, map[uint32]uint32{
		clapdefs.HostGUIExtLayout.ResizeHintsChanged: w.guiResizeHintsFn,
		clapdefs.HostGUIExtLayout.RequestResize:      w.guiRequestResizeFn,
		clapdefs.HostGUIExtLayout.RequestShow:        w.guiRequestShowFn,
		clapdefs.HostGUIExtLayout.RequestHide:        w.guiRequestHideFn,
		clapdefs.HostGUIExtLayout.Closed:             w.guiClosedFn,
	}); err != nil {
		return fmt.Errorf("wclap: build host gui extension: %w", err)
	}
	if w.hostWebviewExtPtr, err = write(4, map[uint32]uint32{
		clapdefs.HostWebviewExtLayout.Send: w.webviewSendFn,
	}); err != nil {
		return fmt.Errorf("wclap: build host webview extension: %w", err)
	}
	if w.hostLogExtPtr, err = write(4, map[uint32]uint32{
		clapdefs.HostLogExtLayout.Log: w.logFn,
	}); err != nil {
		return fmt.Errorf("wclap: build host log extension: %w", err)
	}
	return nil
}

// scratchCString mallocs a permanent (never-reclaimed) guest allocation
// for a NUL-terminated string, used for the handful of long-lived
// strings (host name/vendor/url/version, the factory id) that don't
// belong to any plug-in's own arena.
func scratchCString(ctx context.Context, g guest.Instance, alloc func(context.Context, uint32) (uint32, error), s string) (uint32, error) {
	return guest.WriteCString(ctx, g, alloc, s)
}
