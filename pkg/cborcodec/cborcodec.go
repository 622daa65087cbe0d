// Package cborcodec encodes the response schemas the bridge's exported
// query functions hand back across the C ABI, wrapping
// github.com/fxamacker/cbor/v2. Every HostedWclap/HostedPlugin query
// method builds one of these Go structs and hands it to Marshal rather
// than writing CBOR items by hand.
package cborcodec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// ClapVersion is the [major, minor, revision] triple CLAP reports itself
// under; wclap always reports {1,2,7}.
type ClapVersion [3]uint32

// PluginDescriptor is the CBOR shape of one entry in HostedWclap.get_info's
// plugins array, and HostedPlugin.get_info's desc field.
type PluginDescriptor struct {
	ID          string   `cbor:"id"`
	Name        string   `cbor:"name"`
	Vendor      string   `cbor:"vendor"`
	Description string   `cbor:"description"`
	Features    []string `cbor:"features"`
}

// WclapInfo is the response schema for HostedWclap.get_info.
type WclapInfo struct {
	ClapVersion ClapVersion        `cbor:"clapVersion"`
	Path        string             `cbor:"path"`
	Plugins     []PluginDescriptor `cbor:"plugins"`
}

// PluginInfo is the response schema for HostedPlugin.get_info.
type PluginInfo struct {
	Desc    PluginDescriptor `cbor:"desc"`
	Webview *string          `cbor:"webview"`
}

// ParamInfo is one entry of the get_params response array.
type ParamInfo struct {
	ID      uint32  `cbor:"id"`
	Flags   uint32  `cbor:"flags"`
	Name    string  `cbor:"name"`
	Module  string  `cbor:"module"`
	Min     float64 `cbor:"min"`
	Max     float64 `cbor:"max"`
	Default float64 `cbor:"default"`
}

// ParamValue is the successful-path response schema for get_param.
type ParamValue struct {
	Value float64 `cbor:"value"`
	Text  *string `cbor:"text,omitempty"`
}

// ParamValueFailedMessage is the literal diagnostic string emitted by
// get_param when plugin_params.get_value returns false, preserved
// verbatim for compatibility with the reference implementation.
const ParamValueFailedMessage = "plugin_params.get_value() returned false"

// Resource is the response schema for get_resource.
type Resource struct {
	Type  string `cbor:"type"`
	Bytes []byte `cbor:"bytes"`
}

// StartLayout is the response schema for start: per-port arrays of guest
// channel-pointer offsets, not audio data itself.
type StartLayout struct {
	Inputs  [][]uint32 `cbor:"inputs"`
	Outputs [][]uint32 `cbor:"outputs"`
}

// Marshal encodes v as CBOR, wrapping the library error with the calling
// schema's name for easier diagnosis.
func Marshal(schema string, v any) ([]byte, error) {
	b, err := cbor.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("cborcodec: marshal %s: %w", schema, err)
	}
	return b, nil
}

// MarshalString encodes a bare UTF-8 string as a CBOR text item, used for
// get_param's failure-path diagnostic string.
func MarshalString(s string) ([]byte, error) {
	return Marshal("string", s)
}

// Unmarshal decodes a CBOR payload into v, used for the create_plugin id
// argument.
func Unmarshal(data []byte, v any) error {
	if err := cbor.Unmarshal(data, v); err != nil {
		return fmt.Errorf("cborcodec: unmarshal: %w", err)
	}
	return nil
}

// Null encodes the CBOR null value, used wherever get_info/get_resource
// must emit null on a defensive-default path.
func Null() ([]byte, error) {
	return Marshal("null", nil)
}
