// Package param binds a plug-in's clap.params extension and turns its
// guest-side calls into the CBOR response shapes and pending-event bytes
// the bridge's exported functions hand back to callers. The plug-in, not
// the host, owns parameter truth: this package never caches a value, it
// only marshals what the guest reports or accepts what the caller sends.
package param

import (
	"context"
	"fmt"

	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/xptr"
)

// Extension is the host's binding to one plug-in's clap_plugin_params
// function table, resolved once via get_extension(ExtParams).
type Extension struct {
	Plugin      uint32
	count       uint32
	getInfo     uint32
	getValue    uint32
	valueToText uint32
	textToValue uint32
	flush       uint32
}

// Bind reads the six clap_plugin_params function-table slots out of
// guest memory at extPtr, pairing them with the owning plugin pointer.
func Bind(ctx context.Context, g guest.Instance, pluginPtr, extPtr uint32) (*Extension, error) {
	l := clapdefs.ParamsExtLayout
	read := func(off uint32) (uint32, error) {
		return guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: extPtr + off})
	}
	count, err := read(l.Count)
	if err != nil {
		return nil, fmt.Errorf("param: bind count: %w", err)
	}
	getInfo, err := read(l.GetInfo)
	if err != nil {
		return nil, fmt.Errorf("param: bind get_info: %w", err)
	}
	getValue, err := read(l.GetValue)
	if err != nil {
		return nil, fmt.Errorf("param: bind get_value: %w", err)
	}
	valueToText, err := read(l.ValueToText)
	if err != nil {
		return nil, fmt.Errorf("param: bind value_to_text: %w", err)
	}
	textToValue, err := read(l.TextToValue)
	if err != nil {
		return nil, fmt.Errorf("param: bind text_to_value: %w", err)
	}
	flush, err := read(l.Flush)
	if err != nil {
		return nil, fmt.Errorf("param: bind flush: %w", err)
	}
	return &Extension{
		Plugin:      pluginPtr,
		count:       count,
		getInfo:     getInfo,
		getValue:    getValue,
		valueToText: valueToText,
		textToValue: textToValue,
		flush:       flush,
	}, nil
}

// Count calls params.count.
func (e *Extension) Count(ctx context.Context, g guest.Instance) (uint32, error) {
	res, err := g.Call(ctx, e.count, guest.I32Value(e.Plugin))
	if err != nil {
		return 0, fmt.Errorf("param: count: %w", err)
	}
	return res.I32, nil
}

// GetInfoAt calls params.get_info(index, &out), writing the result into
// the already-allocated clap_param_info buffer at infoPtr (sized
// clapdefs.ParamInfoLayout's total size, NameSize+PathSize+40 bytes) and
// reporting whether the plug-in reported success.
func (e *Extension) GetInfoAt(ctx context.Context, g guest.Instance, index, infoPtr uint32) (bool, error) {
	res, err := g.Call(ctx, e.getInfo, guest.I32Value(e.Plugin), guest.I32Value(index), guest.I32Value(infoPtr))
	if err != nil {
		return false, fmt.Errorf("param: get_info: %w", err)
	}
	return res.I32 != 0, nil
}

// GetValue calls params.get_value(id, &out), writing the f64 result into
// the already-allocated 8-byte scratch slot at valuePtr.
func (e *Extension) GetValue(ctx context.Context, g guest.Instance, id, valuePtr uint32) (bool, error) {
	res, err := g.Call(ctx, e.getValue, guest.I32Value(e.Plugin), guest.I32Value(id), guest.I32Value(valuePtr))
	if err != nil {
		return false, fmt.Errorf("param: get_value: %w", err)
	}
	return res.I32 != 0, nil
}

// ValueToText calls params.value_to_text(id, value, buf, size), writing a
// NUL-terminated string into the already-allocated buffer at bufPtr.
func (e *Extension) ValueToText(ctx context.Context, g guest.Instance, id uint32, value float64, bufPtr, bufSize uint32) (bool, error) {
	res, err := g.Call(ctx, e.valueToText,
		guest.I32Value(e.Plugin), guest.I32Value(id), guest.F64Value(value),
		guest.I32Value(bufPtr), guest.I32Value(bufSize))
	if err != nil {
		return false, fmt.Errorf("param: value_to_text: %w", err)
	}
	return res.I32 != 0, nil
}

// Flush calls params.flush(in_events, out_events). inPtr/outPtr are
// clap_input_events/clap_output_events structs already written into the
// audio-thread arena by pkg/event's WriteInEvents/WriteOutEvents.
func (e *Extension) Flush(ctx context.Context, g guest.Instance, inPtr, outPtr uint32) error {
	if _, err := g.Call(ctx, e.flush, guest.I32Value(e.Plugin), guest.I32Value(inPtr), guest.I32Value(outPtr)); err != nil {
		return fmt.Errorf("param: flush: %w", err)
	}
	return nil
}
