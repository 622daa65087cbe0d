package event

import (
	"context"
	"encoding/binary"

	"github.com/justyntemme/wclaphost/pkg/arena"
	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/guest"
)

// WriteInEvents writes a clap_input_events struct into scope: ctxIndex
// identifies, in the host's own processing-context registry, which copied
// event list sizeFn/getFn should serve when the guest calls back through
// them. Neither function index is invoked here; this only lays out the
// struct the guest's extension call receives as its in_events argument.
func WriteInEvents(ctx context.Context, g guest.Instance, scope *arena.Scoped, ctxIndex, sizeFn, getFn uint32) (uint32, error) {
	l := clapdefs.InEventsLayout
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[l.Ctx:l.Ctx+4], ctxIndex)
	binary.LittleEndian.PutUint32(buf[l.Size:l.Size+4], sizeFn)
	binary.LittleEndian.PutUint32(buf[l.Get:l.Get+4], getFn)

	off, err := scope.Alloc(uint32(len(buf)))
	if err != nil {
		return 0, err
	}
	if err := g.Write(ctx, off, buf); err != nil {
		return 0, err
	}
	return off, nil
}

// WriteOutEvents writes a clap_output_events struct into scope, pairing
// ctxIndex with the single try_push trampoline a plug-in's process() or
// params_flush() call may invoke.
func WriteOutEvents(ctx context.Context, g guest.Instance, scope *arena.Scoped, ctxIndex, tryPushFn uint32) (uint32, error) {
	l := clapdefs.OutEventsLayout
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[l.Ctx:l.Ctx+4], ctxIndex)
	binary.LittleEndian.PutUint32(buf[l.TryPush:l.TryPush+4], tryPushFn)

	off, err := scope.Alloc(uint32(len(buf)))
	if err != nil {
		return 0, err
	}
	if err := g.Write(ctx, off, buf); err != nil {
		return 0, err
	}
	return off, nil
}
