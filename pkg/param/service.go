package param

import (
	"context"
	"fmt"

	"github.com/justyntemme/wclaphost/pkg/arena"
	"github.com/justyntemme/wclaphost/pkg/cborcodec"
	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/event"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/xptr"
)

// paramInfoSize is sizeof(clap_param_info) on the wclap32 wire.
const paramInfoSize = clapdefs.ParamInfoSize

// GetParams implements get_params(w): it calls params.count, then for
// each index reads a param_info through a shared scratch pointer and
// returns one cborcodec.ParamInfo per parameter. Name and module are
// force-NUL-terminated at their last slot to tolerate plug-ins that don't
// NUL-terminate a full-width field themselves.
func GetParams(ctx context.Context, g guest.Instance, scope *arena.Scoped, ext *Extension) ([]cborcodec.ParamInfo, error) {
	count, err := ext.Count(ctx, g)
	if err != nil {
		return nil, err
	}

	infoPtr, err := scope.Alloc(paramInfoSize)
	if err != nil {
		return nil, fmt.Errorf("param: get_params: allocate scratch: %w", err)
	}

	out := make([]cborcodec.ParamInfo, 0, count)
	l := clapdefs.ParamInfoLayout
	for i := uint32(0); i < count; i++ {
		ok, err := ext.GetInfoAt(ctx, g, i, infoPtr)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		id, err := guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: infoPtr + l.ID})
		if err != nil {
			return nil, err
		}
		flags, err := guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: infoPtr + l.Flags})
		if err != nil {
			return nil, err
		}
		name, err := readFixedString(ctx, g, infoPtr+l.Name, clapdefs.NameSize)
		if err != nil {
			return nil, err
		}
		module, err := readFixedString(ctx, g, infoPtr+l.Module, clapdefs.PathSize)
		if err != nil {
			return nil, err
		}
		minV, err := guest.ReadF64(ctx, g, xptr.Pointer[float64]{Offset: infoPtr + l.MinValue})
		if err != nil {
			return nil, err
		}
		maxV, err := guest.ReadF64(ctx, g, xptr.Pointer[float64]{Offset: infoPtr + l.MaxValue})
		if err != nil {
			return nil, err
		}
		defV, err := guest.ReadF64(ctx, g, xptr.Pointer[float64]{Offset: infoPtr + l.DefaultValue})
		if err != nil {
			return nil, err
		}

		out = append(out, cborcodec.ParamInfo{
			ID:      id,
			Flags:   flags,
			Name:    name,
			Module:  module,
			Min:     minV,
			Max:     maxV,
			Default: defV,
		})
	}
	return out, nil
}

// GetParam implements get_param(id, w). On success it also calls
// value_to_text and reports the formatted text alongside the value; on
// failure ok is false and the caller must emit cborcodec.ParamValueFailedMessage
// instead of a ParamValue.
func GetParam(ctx context.Context, g guest.Instance, scope *arena.Scoped, ext *Extension, id uint32) (ok bool, out cborcodec.ParamValue, err error) {
	valuePtr, err := scope.Alloc(8)
	if err != nil {
		return false, cborcodec.ParamValue{}, fmt.Errorf("param: get_param: allocate scratch: %w", err)
	}
	got, err := ext.GetValue(ctx, g, id, valuePtr)
	if err != nil {
		return false, cborcodec.ParamValue{}, err
	}
	if !got {
		return false, cborcodec.ParamValue{}, nil
	}

	value, err := guest.ReadF64(ctx, g, xptr.Pointer[float64]{Offset: valuePtr})
	if err != nil {
		return false, cborcodec.ParamValue{}, err
	}

	const textBufSize = 256
	textPtr, err := scope.Alloc(textBufSize)
	if err != nil {
		return false, cborcodec.ParamValue{}, fmt.Errorf("param: get_param: allocate text scratch: %w", err)
	}
	result := cborcodec.ParamValue{Value: value}
	if ok, terr := ext.ValueToText(ctx, g, id, value, textPtr, textBufSize); terr != nil {
		return false, cborcodec.ParamValue{}, terr
	} else if ok {
		text, rerr := readFixedString(ctx, g, textPtr, textBufSize)
		if rerr != nil {
			return false, cborcodec.ParamValue{}, rerr
		}
		result.Text = &text
	}
	return true, result, nil
}

// NewSetParamEvent builds the raw PARAM_VALUE event bytes set_param(id,
// value) enqueues: time=0, flags=LIVE, note_id/port/channel/key all -1,
// cookie=0 so the plug-in is required to look the parameter up by id.
func NewSetParamEvent(id uint32, value float64) []byte {
	return event.ParamValuePayload(0, clapdefs.EventFlagIsLive, id, -1, -1, -1, -1, value)
}

// Flush implements params_flush: it pulls only param-related pending
// events off q into scope, writes them as a clap_input_events, pairs that
// with a clap_output_events built from ctxIndex/tryPushFn, and calls
// params.flush. The caller owns registering tryPushFn and sizeFn/getFn
// with the guest and assigning ctxIndex in its processing-context
// registry; Flush only does the marshaling and the call.
func Flush(ctx context.Context, g guest.Instance, scope *arena.Scoped, ext *Extension, q *event.Queue, ctxIndex, sizeFn, getFn, tryPushFn uint32) error {
	copied, err := q.CopyPendingFiltered(ctx, g, scope, event.IsParamEvent)
	if err != nil {
		return err
	}
	q.SetCopied(copied)
	defer q.ClearCopied()

	inPtr, err := event.WriteInEvents(ctx, g, scope, ctxIndex, sizeFn, getFn)
	if err != nil {
		return err
	}
	outPtr, err := event.WriteOutEvents(ctx, g, scope, ctxIndex, tryPushFn)
	if err != nil {
		return err
	}
	return ext.Flush(ctx, g, inPtr, outPtr)
}

// readFixedString reads a fixed-width inline char buffer (not a pointer
// indirection), force-NUL-terminating the last byte before scanning so an
// unterminated plug-in buffer can't run the scan past its bounds.
func readFixedString(ctx context.Context, g guest.Instance, offset, size uint32) (string, error) {
	buf := make([]byte, size)
	if err := g.Read(ctx, offset, buf); err != nil {
		return "", fmt.Errorf("param: read fixed string: %w", err)
	}
	buf[size-1] = 0
	n := 0
	for n < len(buf) && buf[n] != 0 {
		n++
	}
	return string(buf[:n]), nil
}
