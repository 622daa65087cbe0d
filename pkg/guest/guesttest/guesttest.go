// Package guesttest provides a fake guest.Instance backed by a plain Go
// byte slice, for unit tests of pkg/arena, pkg/wregistry, pkg/event and
// pkg/wclap that should not need a real compiled wasm module.
package guesttest

import (
	"context"
	"fmt"

	"github.com/justyntemme/wclaphost/pkg/guest"
)

// Instance is a fake guest.Instance. Memory is a fixed-size slice set up
// by New and never grows; Malloc is a simple bump allocator over it that
// fails once the slice is exhausted, standing in for the allocator real
// arenas would otherwise request from.
type Instance struct {
	Mem       []byte
	Bump      uint32
	EntryAddr uint32
	path      string
	hostFns   []guest.HostFunc
	Calls     []CallRecord
	CallFunc  func(ctx context.Context, fn uint32, args []guest.TaggedValue) (guest.TaggedValue, error)
}

// CallRecord captures one Call invocation for test assertions.
type CallRecord struct {
	Fn   uint32
	Args []guest.TaggedValue
}

// New returns an Instance with a size-byte memory space and the given
// resource path. Offset 0 is reserved as the null pointer, matching the
// guest's own convention, so memory starts pre-bumped past it.
func New(size uint32, path string) *Instance {
	return &Instance{Mem: make([]byte, size), Bump: 8, path: path}
}

func (f *Instance) Path() string { return f.path }

func (f *Instance) Init(ctx context.Context) (uint32, error) {
	return f.EntryAddr, nil
}

func (f *Instance) Malloc(ctx context.Context, size uint32) (uint32, error) {
	if size == 0 {
		return 0, nil
	}
	off := f.Bump
	if uint64(off)+uint64(size) > uint64(len(f.Mem)) {
		return 0, fmt.Errorf("guesttest: out of memory allocating %d bytes", size)
	}
	f.Bump += size
	return off, nil
}

func (f *Instance) Read(ctx context.Context, offset uint32, buf []byte) error {
	if uint64(offset)+uint64(len(buf)) > uint64(len(f.Mem)) {
		return guest.ErrOutOfBounds
	}
	copy(buf, f.Mem[offset:offset+uint32(len(buf))])
	return nil
}

func (f *Instance) Write(ctx context.Context, offset uint32, buf []byte) error {
	if uint64(offset)+uint64(len(buf)) > uint64(len(f.Mem)) {
		return guest.ErrOutOfBounds
	}
	copy(f.Mem[offset:offset+uint32(len(buf))], buf)
	return nil
}

func (f *Instance) CountUntil(ctx context.Context, offset uint32, itemSize uint32, until []byte, maxCount uint32) (uint32, error) {
	for n := uint32(0); n < maxCount; n++ {
		start := offset + n*itemSize
		if uint64(start)+uint64(itemSize) > uint64(len(f.Mem)) {
			return 0, guest.ErrOutOfBounds
		}
		if bytesEqual(f.Mem[start:start+itemSize], until) {
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

func (f *Instance) Call(ctx context.Context, fn uint32, args ...guest.TaggedValue) (guest.TaggedValue, error) {
	f.Calls = append(f.Calls, CallRecord{Fn: fn, Args: args})
	if f.CallFunc != nil {
		return f.CallFunc(ctx, fn, args)
	}
	return guest.TaggedValue{}, nil
}

func (f *Instance) RegisterHost(ctx context.Context, fn guest.HostFunc) (uint32, error) {
	f.hostFns = append(f.hostFns, fn)
	return uint32(len(f.hostFns)), nil
}

// InvokeHost lets a test drive a registered host function directly, as
// if the guest had called it through its function table.
func (f *Instance) InvokeHost(ctx context.Context, idx uint32, args ...guest.TaggedValue) guest.TaggedValue {
	if idx == 0 || int(idx) > len(f.hostFns) {
		return guest.TaggedValue{}
	}
	return f.hostFns[idx-1](ctx, args)
}

func (f *Instance) InitThread(ctx context.Context) error { return nil }

func (f *Instance) Close(ctx context.Context) error { return nil }
