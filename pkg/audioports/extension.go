// Package audioports binds a plug-in's clap.audio-ports extension and
// builds the guest-side audio_buffer tables start() hands to process().
// The host never reads or writes sample data itself; it only lays out
// pointers in guest memory that the guest's own process() dereferences.
package audioports

import (
	"context"
	"fmt"

	"github.com/justyntemme/wclaphost/pkg/arena"
	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/xptr"
)

// Extension is the host's binding to a plug-in's clap_plugin_audio_ports
// function table, resolved via get_extension(ExtAudioPorts). A nil
// *Extension means the plug-in has no audio ports on that side (common
// for pure MIDI/note processors), and Build returns an empty layout.
type Extension struct {
	Plugin uint32
	count  uint32
	get    uint32
}

// Bind reads the two clap_plugin_audio_ports function-table slots out of
// guest memory at extPtr.
func Bind(ctx context.Context, g guest.Instance, pluginPtr, extPtr uint32) (*Extension, error) {
	l := clapdefs.AudioPortsExtLayout
	read := func(off uint32) (uint32, error) {
		return guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: extPtr + off})
	}
	count, err := read(l.Count)
	if err != nil {
		return nil, fmt.Errorf("audioports: bind count: %w", err)
	}
	get, err := read(l.Get)
	if err != nil {
		return nil, fmt.Errorf("audioports: bind get: %w", err)
	}
	return &Extension{Plugin: pluginPtr, count: count, get: get}, nil
}

// Count calls audio_ports.count(is_input).
func (e *Extension) Count(ctx context.Context, g guest.Instance, isInput bool) (uint32, error) {
	res, err := g.Call(ctx, e.count, guest.I32Value(e.Plugin), guest.I32Value(boolU32(isInput)))
	if err != nil {
		return 0, fmt.Errorf("audioports: count: %w", err)
	}
	return res.I32, nil
}

// Get calls audio_ports.get(index, is_input, infoPtr), writing the
// clap_audio_port_info struct at infoPtr.
func (e *Extension) Get(ctx context.Context, g guest.Instance, index uint32, isInput bool, infoPtr uint32) (bool, error) {
	res, err := g.Call(ctx, e.get,
		guest.I32Value(e.Plugin), guest.I32Value(index), guest.I32Value(boolU32(isInput)), guest.I32Value(infoPtr))
	if err != nil {
		return false, fmt.Errorf("audioports: get: %w", err)
	}
	return res.I32 != 0, nil
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Ports is the guest-offset layout of one side (input or output) of a
// plug-in's audio ports: one audio_buffer struct per port, and for each
// port, one guest pointer per channel to a maxFrames-sized float32
// array. These are guest offsets only; the host never touches the
// sample memory they point at.
type Ports struct {
	BuffersPtr uint32
	Channels   [][]uint32
}

// Build allocates, for one side (ext.Count(isInput) ports), one
// audio_buffer struct and its backing channel-pointer/sample arrays, all
// within scope. A nil ext yields an empty Ports with BuffersPtr 0,
// matching a plug-in with no ports on that side.
func Build(ctx context.Context, g guest.Instance, scope *arena.Scoped, ext *Extension, isInput bool, maxFrames uint32) (Ports, error) {
	if ext == nil {
		return Ports{}, nil
	}

	count, err := ext.Count(ctx, g, isInput)
	if err != nil {
		return Ports{}, err
	}
	if count == 0 {
		return Ports{}, nil
	}

	infoPtr, err := scope.Alloc(clapdefs.AudioPortInfoSize)
	if err != nil {
		return Ports{}, fmt.Errorf("audioports: build: allocate info scratch: %w", err)
	}
	buffersPtr, err := scope.Alloc(count * clapdefs.AudioBufferSize)
	if err != nil {
		return Ports{}, fmt.Errorf("audioports: build: allocate buffers: %w", err)
	}

	bl := clapdefs.AudioBufferLayout
	pl := clapdefs.AudioPortInfoLayout
	channels := make([][]uint32, count)

	for i := uint32(0); i < count; i++ {
		ok, err := ext.Get(ctx, g, i, isInput, infoPtr)
		if err != nil {
			return Ports{}, err
		}
		if !ok {
			return Ports{}, fmt.Errorf("audioports: build: get(%d, input=%v) returned false", i, isInput)
		}
		channelCount, err := guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: infoPtr + pl.ChannelCount})
		if err != nil {
			return Ports{}, fmt.Errorf("audioports: build: read channel_count: %w", err)
		}

		dataPtr, err := scope.Alloc(channelCount * 4)
		if err != nil {
			return Ports{}, fmt.Errorf("audioports: build: allocate data32 array: %w", err)
		}
		chans := make([]uint32, channelCount)
		for c := uint32(0); c < channelCount; c++ {
			samplePtr, err := scope.Alloc(maxFrames * 4)
			if err != nil {
				return Ports{}, fmt.Errorf("audioports: build: allocate channel samples: %w", err)
			}
			if err := guest.WriteU32(ctx, g, xptr.Pointer[uint32]{Offset: dataPtr + c*4}, samplePtr); err != nil {
				return Ports{}, fmt.Errorf("audioports: build: write channel pointer: %w", err)
			}
			chans[c] = samplePtr
		}
		channels[i] = chans

		bufPtr := buffersPtr + i*clapdefs.AudioBufferSize
		if err := guest.WriteU32(ctx, g, xptr.Pointer[uint32]{Offset: bufPtr + bl.Data32}, dataPtr); err != nil {
			return Ports{}, fmt.Errorf("audioports: build: write data32: %w", err)
		}
		if err := guest.WriteU32(ctx, g, xptr.Pointer[uint32]{Offset: bufPtr + bl.Data64}, 0); err != nil {
			return Ports{}, fmt.Errorf("audioports: build: write data64: %w", err)
		}
		if err := guest.WriteU32(ctx, g, xptr.Pointer[uint32]{Offset: bufPtr + bl.ChannelCount}, channelCount); err != nil {
			return Ports{}, fmt.Errorf("audioports: build: write channel_count: %w", err)
		}
		if err := guest.WriteU32(ctx, g, xptr.Pointer[uint32]{Offset: bufPtr + bl.Latency}, 0); err != nil {
			return Ports{}, fmt.Errorf("audioports: build: write latency: %w", err)
		}
		if err := guest.WriteU32(ctx, g, xptr.Pointer[uint32]{Offset: bufPtr + bl.ConstantMask}, 0); err != nil {
			return Ports{}, fmt.Errorf("audioports: build: write constant_mask low: %w", err)
		}
		if err := guest.WriteU32(ctx, g, xptr.Pointer[uint32]{Offset: bufPtr + bl.ConstantMask + 4}, 0); err != nil {
			return Ports{}, fmt.Errorf("audioports: build: write constant_mask high: %w", err)
		}
	}

	return Ports{BuffersPtr: buffersPtr, Channels: channels}, nil
}
