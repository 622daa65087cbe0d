package wclap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/justyntemme/wclaphost/pkg/cborcodec"
	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/event"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/guest/guesttest"
	"github.com/justyntemme/wclaphost/pkg/xptr"
)

// Guest-side function-table indices for the fake "test.gain" plug-in these
// tests stand up. These live in a separate number space from the host
// trampoline indices wclap itself registers via RegisterHost; guesttest
// never cross-checks the two, so any distinct values would do.
const (
	fnEntryInit = iota + 1
	fnEntryGetFactory
	fnFactoryGetPluginCount
	fnFactoryGetPluginDescriptor
	fnFactoryCreatePlugin
	fnPluginInit
	fnPluginDestroy
	fnPluginActivate
	fnPluginDeactivate
	fnPluginStartProcessing
	fnPluginStopProcessing
	fnPluginProcess
	fnPluginGetExtension
	fnPluginOnMainThread
	fnParamsCount
	fnParamsGetInfo
	fnParamsGetValue
	fnParamsValueToText
	fnParamsFlush
	fnStateSave
	fnStateLoad
)

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func writeFixedString(ctx context.Context, g guest.Instance, offset, size uint32, s string) {
	buf := make([]byte, size)
	copy(buf, s)
	_ = g.Write(ctx, offset, buf)
}

// paramEventRecord is what the fake plug-in's params.flush and process
// callbacks record about each PARAM_VALUE event they read back out of the
// host's in_events trampolines.
type paramEventRecord struct {
	paramID uint32
	value   float64
	time    uint32
}

// fakeHost backs a single fake "test.gain" plug-in: a clap_plugin_entry,
// factory, descriptor, plugin, and params/state extension tables, all laid
// out in a guesttest.Instance's memory, with fakeHost.dispatch standing in
// for the guest-side function bodies a real compiled module would run.
type fakeHost struct {
	g *guesttest.Instance

	factoryPtr   uint32
	descPtr      uint32
	pluginPtr    uint32
	paramsExtPtr uint32
	stateExtPtr  uint32

	paramValue float64

	flushed           []paramEventRecord
	processed         []paramEventRecord
	onMainThreadCalls int
	savedBytes        []byte
	loadBytes         []byte
}

// readInEventsAsParams drives a clap_input_events pointer the same way a
// real guest plug-in's process()/flush() would: size() to learn the count,
// then get(i) for each index, decoding every returned event as a
// PARAM_VALUE (the only event type these tests ever enqueue).
func (fh *fakeHost) readInEventsAsParams(ctx context.Context, inEventsPtr uint32) []paramEventRecord {
	l := clapdefs.InEventsLayout
	pl := clapdefs.ParamValueEventLayout

	sizeFn, _ := guest.ReadU32(ctx, fh.g, xptr.Pointer[uint32]{Offset: inEventsPtr + l.Size})
	getFn, _ := guest.ReadU32(ctx, fh.g, xptr.Pointer[uint32]{Offset: inEventsPtr + l.Get})

	n := fh.g.InvokeHost(ctx, sizeFn, guest.I32Value(inEventsPtr)).I32

	var out []paramEventRecord
	for i := uint32(0); i < n; i++ {
		ptr := fh.g.InvokeHost(ctx, getFn, guest.I32Value(inEventsPtr), guest.I32Value(i)).I32

		hdr := make([]byte, clapdefs.HeaderSize)
		_ = fh.g.Read(ctx, ptr, hdr)
		h := event.DecodeHeader(hdr)

		paramID, _ := guest.ReadU32(ctx, fh.g, xptr.Pointer[uint32]{Offset: ptr + pl.ParamID})
		value, _ := guest.ReadF64(ctx, fh.g, xptr.Pointer[float64]{Offset: ptr + pl.Value})
		out = append(out, paramEventRecord{paramID: paramID, value: value, time: h.Time})
	}
	return out
}

func (fh *fakeHost) dispatch(ctx context.Context, fn uint32, args []guest.TaggedValue) (guest.TaggedValue, error) {
	switch fn {
	case fnEntryInit:
		return guest.I32Value(1), nil
	case fnEntryGetFactory:
		return guest.I32Value(fh.factoryPtr), nil
	case fnFactoryGetPluginCount:
		return guest.I32Value(1), nil
	case fnFactoryGetPluginDescriptor:
		return guest.I32Value(fh.descPtr), nil
	case fnFactoryCreatePlugin:
		return guest.I32Value(fh.pluginPtr), nil

	case fnPluginInit:
		return guest.I32Value(1), nil
	case fnPluginDestroy:
		return guest.TaggedValue{}, nil
	case fnPluginActivate:
		return guest.I32Value(1), nil
	case fnPluginDeactivate:
		return guest.TaggedValue{}, nil
	case fnPluginStartProcessing:
		return guest.I32Value(1), nil
	case fnPluginStopProcessing:
		return guest.TaggedValue{}, nil
	case fnPluginOnMainThread:
		fh.onMainThreadCalls++
		return guest.TaggedValue{}, nil

	case fnPluginGetExtension:
		idPtr := args[1].I32
		id, _ := guest.ReadCString(ctx, fh.g, xptr.Pointer[byte]{Offset: idPtr}, 256)
		switch id {
		case clapdefs.ExtParams:
			return guest.I32Value(fh.paramsExtPtr), nil
		case clapdefs.ExtState:
			return guest.I32Value(fh.stateExtPtr), nil
		default:
			return guest.I32Value(0), nil
		}

	case fnPluginProcess:
		processPtr := args[1].I32
		inEventsPtr, _ := guest.ReadU32(ctx, fh.g, xptr.Pointer[uint32]{Offset: processPtr + clapdefs.ProcessLayout.InEvents})
		fh.processed = append(fh.processed, fh.readInEventsAsParams(ctx, inEventsPtr)...)
		return guest.I32Value(uint32(clapdefs.ProcessContinue)), nil

	case fnParamsCount:
		return guest.I32Value(1), nil
	case fnParamsGetInfo:
		index := args[1].I32
		infoPtr := args[2].I32
		if index != 0 {
			return guest.I32Value(0), nil
		}
		l := clapdefs.ParamInfoLayout
		_ = guest.WriteU32(ctx, fh.g, xptr.Pointer[uint32]{Offset: infoPtr + l.ID}, 17)
		_ = guest.WriteU32(ctx, fh.g, xptr.Pointer[uint32]{Offset: infoPtr + l.Flags}, 0)
		writeFixedString(ctx, fh.g, infoPtr+l.Name, clapdefs.NameSize, "Gain")
		writeFixedString(ctx, fh.g, infoPtr+l.Module, clapdefs.PathSize, "")
		_ = guest.WriteF64(ctx, fh.g, xptr.Pointer[float64]{Offset: infoPtr + l.MinValue}, 0)
		_ = guest.WriteF64(ctx, fh.g, xptr.Pointer[float64]{Offset: infoPtr + l.MaxValue}, 1)
		_ = guest.WriteF64(ctx, fh.g, xptr.Pointer[float64]{Offset: infoPtr + l.DefaultValue}, 0.5)
		return guest.I32Value(1), nil
	case fnParamsGetValue:
		id := args[1].I32
		valuePtr := args[2].I32
		if id != 17 {
			return guest.I32Value(0), nil
		}
		_ = guest.WriteF64(ctx, fh.g, xptr.Pointer[float64]{Offset: valuePtr}, fh.paramValue)
		return guest.I32Value(1), nil
	case fnParamsValueToText:
		return guest.I32Value(0), nil
	case fnParamsFlush:
		inEventsPtr := args[1].I32
		recs := fh.readInEventsAsParams(ctx, inEventsPtr)
		fh.flushed = append(fh.flushed, recs...)
		for _, r := range recs {
			if r.paramID == 17 {
				fh.paramValue = r.value
			}
		}
		return guest.TaggedValue{}, nil

	case fnStateSave:
		ostreamPtr := args[1].I32
		writeFn, _ := guest.ReadU32(ctx, fh.g, xptr.Pointer[uint32]{Offset: ostreamPtr + clapdefs.OStreamLayout.Write})
		bufPtr, _ := fh.g.Malloc(ctx, uint32(len(fh.savedBytes)))
		_ = fh.g.Write(ctx, bufPtr, fh.savedBytes)
		fh.g.InvokeHost(ctx, writeFn, guest.I32Value(ostreamPtr), guest.I32Value(bufPtr), guest.I64Value(uint64(len(fh.savedBytes))))
		return guest.I32Value(1), nil
	case fnStateLoad:
		istreamPtr := args[1].I32
		readFn, _ := guest.ReadU32(ctx, fh.g, xptr.Pointer[uint32]{Offset: istreamPtr + clapdefs.IStreamLayout.Read})
		const chunk = 64
		bufPtr, _ := fh.g.Malloc(ctx, chunk)
		var got []byte
		for {
			res := fh.g.InvokeHost(ctx, readFn, guest.I32Value(istreamPtr), guest.I32Value(bufPtr), guest.I64Value(chunk))
			n := res.I64
			if n == 0 {
				break
			}
			piece := make([]byte, n)
			_ = fh.g.Read(ctx, bufPtr, piece)
			got = append(got, piece...)
		}
		fh.loadBytes = got
		return guest.I32Value(1), nil
	}
	return guest.TaggedValue{}, nil
}

// newFakeHost stands up one "test.gain" plug-in reachable through a
// clap_plugin_entry/factory pair, with clap.params and clap.state
// extensions bound, ready for a HostedWclap to discover via New.
func newFakeHost(t *testing.T) *fakeHost {
	t.Helper()
	ctx := context.Background()
	g := guesttest.New(8<<20, "test-path")

	fh := &fakeHost{g: g, paramValue: 0.5}
	g.CallFunc = fh.dispatch

	el := clapdefs.PluginEntryLayout
	entryPtr, err := g.Malloc(ctx, el.GetFactory+4)
	require.NoError(t, err)
	g.EntryAddr = entryPtr
	require.NoError(t, g.Write(ctx, entryPtr+el.VersionMajor, u32le(1)))
	require.NoError(t, g.Write(ctx, entryPtr+el.VersionMinor, u32le(2)))
	require.NoError(t, g.Write(ctx, entryPtr+el.VersionRevision, u32le(7)))
	require.NoError(t, g.Write(ctx, entryPtr+el.Init, u32le(fnEntryInit)))
	require.NoError(t, g.Write(ctx, entryPtr+el.GetFactory, u32le(fnEntryGetFactory)))

	fl := clapdefs.PluginFactoryLayout
	factoryPtr, err := g.Malloc(ctx, fl.CreatePlugin+4)
	require.NoError(t, err)
	fh.factoryPtr = factoryPtr
	require.NoError(t, g.Write(ctx, factoryPtr+fl.GetPluginCount, u32le(fnFactoryGetPluginCount)))
	require.NoError(t, g.Write(ctx, factoryPtr+fl.GetPluginDescriptor, u32le(fnFactoryGetPluginDescriptor)))
	require.NoError(t, g.Write(ctx, factoryPtr+fl.CreatePlugin, u32le(fnFactoryCreatePlugin)))

	dl := clapdefs.DescriptorLayout
	descPtr, err := g.Malloc(ctx, dl.Features+4)
	require.NoError(t, err)
	fh.descPtr = descPtr
	idPtr, err := guest.WriteCString(ctx, g, g.Malloc, "test.gain")
	require.NoError(t, err)
	namePtr, err := guest.WriteCString(ctx, g, g.Malloc, "Test Gain")
	require.NoError(t, err)
	vendorPtr, err := guest.WriteCString(ctx, g, g.Malloc, "wclaphost")
	require.NoError(t, err)
	descriptionPtr, err := guest.WriteCString(ctx, g, g.Malloc, "a fake test plug-in")
	require.NoError(t, err)
	require.NoError(t, g.Write(ctx, descPtr+dl.ID, u32le(idPtr)))
	require.NoError(t, g.Write(ctx, descPtr+dl.Name, u32le(namePtr)))
	require.NoError(t, g.Write(ctx, descPtr+dl.Vendor, u32le(vendorPtr)))
	require.NoError(t, g.Write(ctx, descPtr+dl.Description, u32le(descriptionPtr)))
	require.NoError(t, g.Write(ctx, descPtr+dl.Features, u32le(0)))

	pl := clapdefs.PluginLayout
	pluginPtr, err := g.Malloc(ctx, pl.OnMainThread+4)
	require.NoError(t, err)
	fh.pluginPtr = pluginPtr
	require.NoError(t, g.Write(ctx, pluginPtr+pl.Desc, u32le(descPtr)))
	require.NoError(t, g.Write(ctx, pluginPtr+pl.Init, u32le(fnPluginInit)))
	require.NoError(t, g.Write(ctx, pluginPtr+pl.Destroy, u32le(fnPluginDestroy)))
	require.NoError(t, g.Write(ctx, pluginPtr+pl.Activate, u32le(fnPluginActivate)))
	require.NoError(t, g.Write(ctx, pluginPtr+pl.Deactivate, u32le(fnPluginDeactivate)))
	require.NoError(t, g.Write(ctx, pluginPtr+pl.StartProcessing, u32le(fnPluginStartProcessing)))
	require.NoError(t, g.Write(ctx, pluginPtr+pl.StopProcessing, u32le(fnPluginStopProcessing)))
	require.NoError(t, g.Write(ctx, pluginPtr+pl.Process, u32le(fnPluginProcess)))
	require.NoError(t, g.Write(ctx, pluginPtr+pl.GetExtension, u32le(fnPluginGetExtension)))
	require.NoError(t, g.Write(ctx, pluginPtr+pl.OnMainThread, u32le(fnPluginOnMainThread)))

	pel := clapdefs.ParamsExtLayout
	paramsExtPtr, err := g.Malloc(ctx, pel.Flush+4)
	require.NoError(t, err)
	fh.paramsExtPtr = paramsExtPtr
	require.NoError(t, g.Write(ctx, paramsExtPtr+pel.Count, u32le(fnParamsCount)))
	require.NoError(t, g.Write(ctx, paramsExtPtr+pel.GetInfo, u32le(fnParamsGetInfo)))
	require.NoError(t, g.Write(ctx, paramsExtPtr+pel.GetValue, u32le(fnParamsGetValue)))
	require.NoError(t, g.Write(ctx, paramsExtPtr+pel.ValueToText, u32le(fnParamsValueToText)))
	require.NoError(t, g.Write(ctx, paramsExtPtr+pel.Flush, u32le(fnParamsFlush)))

	sel := clapdefs.StateExtLayout
	stateExtPtr, err := g.Malloc(ctx, sel.Load+4)
	require.NoError(t, err)
	fh.stateExtPtr = stateExtPtr
	require.NoError(t, g.Write(ctx, stateExtPtr+sel.Save, u32le(fnStateSave)))
	require.NoError(t, g.Write(ctx, stateExtPtr+sel.Load, u32le(fnStateLoad)))

	return fh
}

func TestNewDiscoversPluginViaFactory(t *testing.T) {
	ctx := context.Background()
	fh := newFakeHost(t)

	w, err := New(ctx, fh.g, nil)
	require.NoError(t, err)

	info, err := w.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, cborcodec.ClapVersion{1, 2, 7}, info.ClapVersion)
	require.Len(t, info.Plugins, 1)
	assert.Equal(t, "test.gain", info.Plugins[0].ID)
	assert.Equal(t, "Test Gain", info.Plugins[0].Name)
	assert.Equal(t, "wclaphost", info.Plugins[0].Vendor)
	assert.Empty(t, info.Plugins[0].Features)
}

func TestCreatePluginBindsParamsAndReportsInfo(t *testing.T) {
	ctx := context.Background()
	fh := newFakeHost(t)
	w, err := New(ctx, fh.g, nil)
	require.NoError(t, err)

	p, err := w.CreatePlugin(ctx, "test.gain")
	require.NoError(t, err)

	info, err := p.GetInfo(ctx)
	require.NoError(t, err)
	assert.Equal(t, "test.gain", info.Desc.ID)
	assert.Nil(t, info.Webview)

	params, err := p.GetParams(ctx)
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, uint32(17), params[0].ID)
	assert.Equal(t, "Gain", params[0].Name)
	assert.Equal(t, 0.5, params[0].Default)
}

func TestGetParamReturnsCurrentValue(t *testing.T) {
	ctx := context.Background()
	fh := newFakeHost(t)
	w, err := New(ctx, fh.g, nil)
	require.NoError(t, err)
	p, err := w.CreatePlugin(ctx, "test.gain")
	require.NoError(t, err)

	ok, value, err := p.GetParam(ctx, 17)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0.5, value.Value)

	ok, _, err = p.GetParam(ctx, 99)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestSetParamThenFlushEmitsSinglePendingEvent matches set_param(17, 0.5)
// followed by params_flush: exactly one PARAM_VALUE event reaches the
// plug-in, carrying the id and value set_param was given and time 0.
func TestSetParamThenFlushEmitsSinglePendingEvent(t *testing.T) {
	ctx := context.Background()
	fh := newFakeHost(t)
	w, err := New(ctx, fh.g, nil)
	require.NoError(t, err)
	p, err := w.CreatePlugin(ctx, "test.gain")
	require.NoError(t, err)

	p.SetParam(17, 0.5)
	require.NoError(t, p.ParamsFlush(ctx))

	require.Len(t, fh.flushed, 1)
	assert.Equal(t, uint32(17), fh.flushed[0].paramID)
	assert.Equal(t, 0.5, fh.flushed[0].value)
	assert.Equal(t, uint32(0), fh.flushed[0].time)
	assert.Equal(t, 0, p.events.Len())
}

// TestProcessServesEventsSortedByTimeStable enqueues events at times
// [5, 1, 5, 3] and checks process() serves them back at [1, 3, 5, 5], with
// the two time-5 events still in their original relative order.
func TestProcessServesEventsSortedByTimeStable(t *testing.T) {
	ctx := context.Background()
	fh := newFakeHost(t)
	w, err := New(ctx, fh.g, nil)
	require.NoError(t, err)
	p, err := w.CreatePlugin(ctx, "test.gain")
	require.NoError(t, err)

	_, err = p.Start(ctx, 48000, 64, 256)
	require.NoError(t, err)

	times := []uint32{5, 1, 5, 3}
	for i, tm := range times {
		raw := event.ParamValuePayload(tm, 0, 17, -1, -1, -1, -1, float64(i))
		p.events.AddEvent(raw)
	}

	status, err := p.Process(ctx, 64)
	require.NoError(t, err)
	assert.Equal(t, clapdefs.ProcessContinue, status)

	require.Len(t, fh.processed, 4)
	gotTimes := make([]uint32, len(fh.processed))
	gotValues := make([]float64, len(fh.processed))
	for i, r := range fh.processed {
		gotTimes[i] = r.time
		gotValues[i] = r.value
	}
	assert.Equal(t, []uint32{1, 3, 5, 5}, gotTimes)
	assert.Equal(t, []float64{1, 3, 0, 2}, gotValues)
}

func TestSaveThenLoadStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	fh := newFakeHost(t)
	w, err := New(ctx, fh.g, nil)
	require.NoError(t, err)
	p, err := w.CreatePlugin(ctx, "test.gain")
	require.NoError(t, err)

	fh.savedBytes = []byte("patch-state-bytes")
	data, err := p.SaveState(ctx)
	require.NoError(t, err)
	assert.Equal(t, fh.savedBytes, data)

	ok, err := p.LoadState(ctx, data)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, fh.savedBytes, fh.loadBytes)
}

func TestAcceptEventFiltersByForwardableType(t *testing.T) {
	ctx := context.Background()
	fh := newFakeHost(t)
	w, err := New(ctx, fh.g, nil)
	require.NoError(t, err)
	p, err := w.CreatePlugin(ctx, "test.gain")
	require.NoError(t, err)

	noteOn := make([]byte, clapdefs.HeaderSize)
	event.EncodeHeader(noteOn, event.Header{Size: clapdefs.HeaderSize, Type: clapdefs.EventNoteOn, SpaceID: clapdefs.CoreEventSpaceID})
	assert.True(t, p.AcceptEvent(noteOn))
	assert.Equal(t, 1, p.events.Len())

	transport := make([]byte, clapdefs.HeaderSize)
	event.EncodeHeader(transport, event.Header{Size: clapdefs.HeaderSize, Type: clapdefs.EventTransport, SpaceID: clapdefs.CoreEventSpaceID})
	assert.False(t, p.AcceptEvent(transport))
	assert.Equal(t, 1, p.events.Len())
}

func TestMainThreadConsumesPendingCallbackOnce(t *testing.T) {
	ctx := context.Background()
	fh := newFakeHost(t)
	w, err := New(ctx, fh.g, nil)
	require.NoError(t, err)
	p, err := w.CreatePlugin(ctx, "test.gain")
	require.NoError(t, err)

	fh.g.InvokeHost(ctx, w.hostRequestCallbackFn, guest.I32Value(p.hostPtr))

	require.NoError(t, p.MainThread(ctx))
	assert.Equal(t, 1, fh.onMainThreadCalls)

	require.NoError(t, p.MainThread(ctx))
	assert.Equal(t, 1, fh.onMainThreadCalls)
}
