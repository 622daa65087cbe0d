package wclap

import (
	"context"
	"fmt"

	"github.com/justyntemme/wclaphost/pkg/cborcodec"
	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/xptr"
)

const (
	maxDescriptorStringLen = 4096
	maxFeatureCount        = 256
)

// readDescriptor reads a clap_plugin_descriptor at descPtr into the CBOR
// response shape, used by both HostedWclap.GetInfo's plugin list and
// HostedPlugin.GetInfo's own desc field.
func readDescriptor(ctx context.Context, g guest.Instance, descPtr uint32) (cborcodec.PluginDescriptor, error) {
	l := clapdefs.DescriptorLayout

	readStr := func(fieldOffset uint32) (string, error) {
		strPtr, err := guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: descPtr + fieldOffset})
		if err != nil {
			return "", err
		}
		return guest.ReadCString(ctx, g, xptr.Pointer[byte]{Offset: strPtr}, maxDescriptorStringLen)
	}

	id, err := readStr(l.ID)
	if err != nil {
		return cborcodec.PluginDescriptor{}, fmt.Errorf("wclap: read descriptor id: %w", err)
	}
	name, err := readStr(l.Name)
	if err != nil {
		return cborcodec.PluginDescriptor{}, fmt.Errorf("wclap: read descriptor name: %w", err)
	}
	vendor, err := readStr(l.Vendor)
	if err != nil {
		return cborcodec.PluginDescriptor{}, fmt.Errorf("wclap: read descriptor vendor: %w", err)
	}
	description, err := readStr(l.Description)
	if err != nil {
		return cborcodec.PluginDescriptor{}, fmt.Errorf("wclap: read descriptor description: %w", err)
	}

	featuresPtr, err := guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: descPtr + l.Features})
	if err != nil {
		return cborcodec.PluginDescriptor{}, fmt.Errorf("wclap: read descriptor features pointer: %w", err)
	}
	features, err := readFeatures(ctx, g, featuresPtr)
	if err != nil {
		return cborcodec.PluginDescriptor{}, fmt.Errorf("wclap: read descriptor features: %w", err)
	}

	return cborcodec.PluginDescriptor{
		ID:          id,
		Name:        name,
		Vendor:      vendor,
		Description: description,
		Features:    features,
	}, nil
}

// readFeatures walks a NUL-pointer-terminated array of guest char*: the
// sentinel is a null pointer (four zero bytes), not a NUL byte, so this
// walks the array one element at a time rather than leaning on
// guest.Instance.CountUntil the way a single string's scan does.
func readFeatures(ctx context.Context, g guest.Instance, arrPtr uint32) ([]string, error) {
	if arrPtr == 0 {
		return nil, nil
	}

	var out []string
	for i := uint32(0); i < maxFeatureCount; i++ {
		strPtr, err := guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: arrPtr + i*4})
		if err != nil {
			return nil, err
		}
		if strPtr == 0 {
			break
		}
		s, err := guest.ReadCString(ctx, g, xptr.Pointer[byte]{Offset: strPtr}, maxDescriptorStringLen)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
