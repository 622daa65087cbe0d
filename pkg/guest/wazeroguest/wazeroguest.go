// Package wazeroguest backs guest.Instance with a real WebAssembly
// module, using tetratelabs/wazero as the runtime. Guest calls cross the
// module boundary through exported functions (_wclap_init, _wclap_malloc,
// _wclap_call, ...) under the stable import/export naming the rest of
// this bridge assumes, the same convention the reference JS/wasm host
// used for its _wclapInstance import namespace.
package wazeroguest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/wlog"
)

// Exported guest function names this backend expects. A guest module
// compiled against wclap's guest-side SDK exports exactly these.
const (
	fnInit         = "_wclap_init"
	fnMalloc       = "_wclap_malloc"
	fnThreadInit   = "_wclap_thread_init"
	hostModuleName = "_wclapInstance"
)

// hostFnArity is the fixed parameter count of every registered host
// function: the wire gives each trampoline a uniform (i64 x 4) -> i64
// signature, and the guest-side shim zero-pads unused slots. The widest
// host callback CLAP ever makes is three arguments (istream.read,
// ostream.write, clap_host_log.log), so four leaves one slot of slack
// without per-signature import plumbing.
const hostFnArity = 4

var log = wlog.New("guest")

// Instance is the wazero-backed guest.Instance implementation. mu guards
// only the instantiation/registration bookkeeping (hostFns, mod,
// started), never a guest computation: wazero runs imported host
// functions synchronously on the calling goroutine, and every meaningful
// trampoline re-enters Read/Write/Call mid-call, so holding a lock
// across the guest would self-deadlock on the first host callback.
// Serializing calls into the same guest across threads is the caller's
// contract, the same main-thread/audio-thread discipline the plugin side
// already enforces with its own locks.
//
// Host functions must all be registered (RegisterHost) before the first
// guest access: the guest module is instantiated lazily by the first
// Init, Malloc, Read, Write, CountUntil or Call, since its imports have
// to resolve against a finished host module. This
// matches the reference host's comment that host methods must be wired
// up "before it gets locked by init()".
type Instance struct {
	mu      sync.Mutex
	rt      wazero.Runtime
	wasm    []byte
	mod     api.Module
	path    string
	hostFns []guest.HostFunc
	started bool

	// id distinguishes this instance's log lines from any other hosted
	// guest running in the same process; a bare resource path is often
	// shared across instances (the same plug-in bundle loaded twice).
	id  string
	log zerolog.Logger
}

// New sets up a fresh wazero runtime for cfg.Wasm. The guest module is
// not instantiated yet; call RegisterHost as needed before any other
// guest access. The caller must eventually call Close.
func New(ctx context.Context, cfg guest.Config) (*Instance, error) {
	rt := wazero.NewRuntime(ctx)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("wazeroguest: instantiate wasi: %w", err)
	}

	id := uuid.NewString()
	return &Instance{
		rt:   rt,
		wasm: cfg.Wasm,
		path: cfg.ResourcePath,
		id:   id,
		log:  log.With().Str("instance", id).Logger(),
	}, nil
}

func (i *Instance) Path() string { return i.path }

// start finalizes the host module with every function registered so far
// and instantiates the guest module against it. Must be called with mu
// held.
func (i *Instance) start(ctx context.Context) error {
	if i.started {
		return nil
	}

	params := make([]api.ValueType, hostFnArity)
	for j := range params {
		params[j] = api.ValueTypeI64
	}
	results := []api.ValueType{api.ValueTypeI64}

	builder := i.rt.NewHostModuleBuilder(hostModuleName)
	for n, fn := range i.hostFns {
		idx := uint32(n + 1)
		name := fmt.Sprintf("host_fn_%d", idx)
		bound := fn
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, m api.Module, stack []uint64) {
				args := make([]guest.TaggedValue, hostFnArity)
				for j := 0; j < hostFnArity; j++ {
					args[j] = unpackTagged(stack[j])
				}
				result := bound(ctx, args)
				stack[0] = packTagged(result)
			}), params, results).
			Export(name)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		return fmt.Errorf("wazeroguest: register host module: %w", err)
	}

	mod, err := i.rt.Instantiate(ctx, i.wasm)
	if err != nil {
		return fmt.Errorf("wazeroguest: instantiate guest module: %w", err)
	}
	i.mod = mod
	i.started = true
	i.log.Info().Str("path", i.path).Msg("guest module instantiated")
	return nil
}

// ensureStarted instantiates the guest module on first use and returns
// it. Trampolines re-entering during a guest call find started already
// true, so the brief bookkeeping lock here never nests.
func (i *Instance) ensureStarted(ctx context.Context) (api.Module, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.start(ctx); err != nil {
		return nil, err
	}
	return i.mod, nil
}

func (i *Instance) Init(ctx context.Context) (uint32, error) {
	m, err := i.ensureStarted(ctx)
	if err != nil {
		return 0, err
	}

	fn := m.ExportedFunction(fnInit)
	if fn == nil {
		return 0, guest.ErrNoEntry
	}
	res, err := fn.Call(ctx)
	if err != nil {
		return 0, fmt.Errorf("wazeroguest: init: %w", err)
	}
	if len(res) == 0 {
		return 0, guest.ErrNoEntry
	}
	entry := uint32(res[0])
	if entry == 0 {
		return 0, guest.ErrNoEntry
	}
	return entry, nil
}

func (i *Instance) Malloc(ctx context.Context, size uint32) (uint32, error) {
	m, err := i.ensureStarted(ctx)
	if err != nil {
		return 0, err
	}

	fn := m.ExportedFunction(fnMalloc)
	if fn == nil {
		return 0, fmt.Errorf("wazeroguest: guest does not export %s", fnMalloc)
	}
	res, err := fn.Call(ctx, uint64(size))
	if err != nil {
		return 0, fmt.Errorf("wazeroguest: malloc(%d): %w", size, err)
	}
	return uint32(res[0]), nil
}

func (i *Instance) Read(ctx context.Context, offset uint32, buf []byte) error {
	m, err := i.ensureStarted(ctx)
	if err != nil {
		return err
	}

	data, ok := m.Memory().Read(offset, uint32(len(buf)))
	if !ok {
		return fmt.Errorf("%w: read offset=%d len=%d", guest.ErrOutOfBounds, offset, len(buf))
	}
	copy(buf, data)
	return nil
}

func (i *Instance) Write(ctx context.Context, offset uint32, buf []byte) error {
	m, err := i.ensureStarted(ctx)
	if err != nil {
		return err
	}

	if !m.Memory().Write(offset, buf) {
		return fmt.Errorf("%w: write offset=%d len=%d", guest.ErrOutOfBounds, offset, len(buf))
	}
	return nil
}

func (i *Instance) CountUntil(ctx context.Context, offset uint32, itemSize uint32, until []byte, maxCount uint32) (uint32, error) {
	m, err := i.ensureStarted(ctx)
	if err != nil {
		return 0, err
	}

	mem := m.Memory()
	for n := uint32(0); n < maxCount; n++ {
		item, ok := mem.Read(offset+n*itemSize, itemSize)
		if !ok {
			return 0, fmt.Errorf("%w: count_until offset=%d", guest.ErrOutOfBounds, offset+n*itemSize)
		}
		if bytesEqual(item, until) {
			return n, nil
		}
	}
	return maxCount, nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Call invokes the guest function-table entry at index fn. The 32-bit
// guest path packs every argument into a single i64 per the TaggedValue
// wire convention, matching how a real cross-module boundary has to tag
// dynamically typed arguments without a shared native calling
// convention. No lock is held across dispatch.Call: the guest may
// re-enter this instance through any registered host function while the
// call is in flight.
func (i *Instance) Call(ctx context.Context, fn uint32, args ...guest.TaggedValue) (guest.TaggedValue, error) {
	m, err := i.ensureStarted(ctx)
	if err != nil {
		return guest.TaggedValue{}, err
	}

	dispatch := m.ExportedFunction("_wclap_call")
	if dispatch == nil {
		return guest.TaggedValue{}, fmt.Errorf("wazeroguest: guest does not export _wclap_call")
	}

	packed := make([]uint64, 0, len(args)+1)
	packed = append(packed, uint64(fn))
	for _, a := range args {
		packed = append(packed, packTagged(a))
	}

	res, err := dispatch.Call(ctx, packed...)
	if err != nil {
		i.log.Debug().Uint32("fn", fn).Err(err).Msg("guest call failed")
		return guest.TaggedValue{}, fmt.Errorf("wazeroguest: call fn=%d: %w", fn, err)
	}
	if len(res) == 0 {
		return guest.TaggedValue{}, nil
	}
	return unpackTagged(res[0]), nil
}

func packTagged(v guest.TaggedValue) uint64 {
	switch v.Kind {
	case guest.KindI32:
		return uint64(v.I32)
	case guest.KindI64:
		return v.I64
	case guest.KindF32:
		return uint64(api.EncodeF32(v.F32))
	case guest.KindF64:
		return api.EncodeF64(v.F64)
	default:
		return 0
	}
}

// unpackTagged widens one untyped i64 wire slot back into a TaggedValue.
// The wire carries no type tag of its own, so both integer lanes are
// populated and the receiver picks the lane its signature implies (a
// pointer argument reads I32, istream/ostream sizes read I64).
func unpackTagged(raw uint64) guest.TaggedValue {
	return guest.TaggedValue{Kind: guest.KindI64, I32: uint32(raw), I64: raw}
}

// InitThread relays a new host thread's arrival to the guest via its
// optional _wclap_thread_init export. A guest without that export has no
// per-thread state to set up, so its absence is not an error.
func (i *Instance) InitThread(ctx context.Context) error {
	i.mu.Lock()
	m := i.mod
	i.mu.Unlock()

	if m == nil {
		return nil
	}
	fn := m.ExportedFunction(fnThreadInit)
	if fn == nil {
		return nil
	}
	if _, err := fn.Call(ctx); err != nil {
		return fmt.Errorf("wazeroguest: thread init: %w", err)
	}
	return nil
}

// RegisterHost queues fn as a guest-callable import and returns the
// function-table index it will be assigned. Must be called before the
// first guest access; once the guest module has started, host functions
// are locked in.
func (i *Instance) RegisterHost(ctx context.Context, fn guest.HostFunc) (uint32, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.started {
		return 0, fmt.Errorf("wazeroguest: cannot register host function after guest start")
	}
	i.hostFns = append(i.hostFns, fn)
	return uint32(len(i.hostFns)), nil
}

func (i *Instance) Close(ctx context.Context) error {
	i.log.Info().Msg("guest instance closing")
	return i.rt.Close(ctx)
}
