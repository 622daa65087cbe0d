// Package guest defines the host's view of a foreign WebAssembly-style
// guest module: a linear memory the host can only read and write by
// offset, and a function table the host can only invoke by index. The
// host never dereferences a guest pointer directly; every access goes
// through the Instance interface so a concrete runtime (wazeroguest, or a
// fake for tests) can back it.
package guest

import (
	"context"
	"errors"

	"github.com/justyntemme/wclaphost/pkg/xptr"
)

// ErrNotSupported64 reports a guest module with a 64-bit memory model;
// wclap only hosts 32-bit guests. wclap.New passes it through when an
// Instance's Init returns it. Neither wazeroguest nor guesttest checks a
// module's bitness, and neither returns this error.
var ErrNotSupported64 = errors.New("guest: 64-bit guest modules are not supported")

// ErrNoEntry is returned when a guest's exported entry point does not
// resolve to a non-null clap_plugin_entry.
var ErrNoEntry = errors.New("guest: module exports no plugin entry")

// ErrOutOfBounds is returned by Read/Write/CountUntil when an offset or length
// falls outside the guest's linear memory.
var ErrOutOfBounds = errors.New("guest: access out of bounds")

// TaggedValue is the tagged union used to pass arguments to and read
// results from guest function calls, mirroring the wire format a real
// WebAssembly host uses to cross the module boundary without assuming a
// shared ABI for every argument width.
type TaggedValue struct {
	Kind ValueKind
	I32  uint32
	I64  uint64
	F32  float32
	F64  float64
}

// ValueKind tags which field of a TaggedValue is live.
type ValueKind uint8

const (
	KindI32 ValueKind = iota
	KindI64
	KindF32
	KindF64
)

// I32Value builds a TaggedValue carrying a 32-bit integer, the kind used
// for pointers, indices and flags. The other constructors build the
// remaining kinds: I64 for stream sizes, F64 for CLAP doubles such as a
// param value or activate's sample rate, and F32 for completeness.
func I32Value(v uint32) TaggedValue  { return TaggedValue{Kind: KindI32, I32: v} }
func I64Value(v uint64) TaggedValue  { return TaggedValue{Kind: KindI64, I64: v} }
func F32Value(v float32) TaggedValue { return TaggedValue{Kind: KindF32, F32: v} }
func F64Value(v float64) TaggedValue { return TaggedValue{Kind: KindF64, F64: v} }

// AsPointer reinterprets a TaggedValue's 32-bit lane as a guest pointer.
func AsPointer[T any](v TaggedValue) xptr.Pointer[T] {
	return xptr.Pointer[T]{Offset: v.I32}
}

// PointerValue builds a TaggedValue from a guest pointer.
func PointerValue[T any](p xptr.Pointer[T]) TaggedValue {
	return I32Value(p.Offset)
}

// HostFunc is a host-implemented function the guest can call back into,
// registered with RegisterHost. args are the tagged values the guest
// passed; the returned TaggedValue becomes the call's result.
type HostFunc func(ctx context.Context, args []TaggedValue) TaggedValue

// Instance is the host's handle on one running guest module. A single
// guest module is not safe to call into from two threads at once;
// serializing calls is the caller's contract (the main-thread/audio-
// thread discipline the plugin layer enforces), not the Instance's.
// Implementations must not hold a lock across a guest call: the guest
// re-enters Read/Write/Call through registered host functions on the
// same goroutine while the call is in flight.
type Instance interface {
	// Path returns the synthetic resource path this instance was created
	// with, the same string passed to clap_plugin_entry.init.
	Path() string

	// Init invokes the guest's exported entry point resolver and returns
	// the guest offset of its clap_plugin_entry. A zero offset with a nil
	// error means the guest exports no entry point.
	Init(ctx context.Context) (uint32, error)

	// Malloc asks the guest's allocator (typically its own bump/arena
	// allocator, exported for the host to drive) for size bytes and
	// returns the offset of the allocation.
	Malloc(ctx context.Context, size uint32) (uint32, error)

	// Read copies len(buf) bytes from guest memory at offset into buf.
	Read(ctx context.Context, offset uint32, buf []byte) error

	// Write copies buf into guest memory at offset.
	Write(ctx context.Context, offset uint32, buf []byte) error

	// CountUntil scans itemSize-byte items starting at offset until one
	// equals until (compared byte-for-byte), returning the item count
	// scanned (not including the terminator), or maxCount if no
	// terminator was found in range.
	CountUntil(ctx context.Context, offset uint32, itemSize uint32, until []byte, maxCount uint32) (uint32, error)

	// Call invokes the guest function at table index fn with args,
	// returning its tagged result.
	Call(ctx context.Context, fn uint32, args ...TaggedValue) (TaggedValue, error)

	// InitThread relays a new host thread's arrival to the guest so its
	// runtime can set up thread-local state before that thread's first
	// guest call (the audio thread, typically). Guests without per-thread
	// state treat this as a no-op.
	InitThread(ctx context.Context) error

	// RegisterHost installs fn as a callable guest import and returns the
	// function-table index the guest sees for it.
	RegisterHost(ctx context.Context, fn HostFunc) (uint32, error)

	// Close releases the underlying runtime resources.
	Close(ctx context.Context) error
}

// Config holds the knobs needed to stand up a guest.Instance. It carries
// no file-path/port style application configuration: wclap is a library,
// and the wasm bytes and resource path are supplied by its caller.
type Config struct {
	// Wasm is the compiled guest module bytes.
	Wasm []byte

	// ResourcePath is the string handed to clap_plugin_entry.init, and
	// returned by Instance.Path. An empty value is kept as-is; nothing
	// substitutes a generated path for it.
	ResourcePath string
}
