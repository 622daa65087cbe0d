package cborcodec

import (
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/require"
)

func TestMarshalUnmarshalWclapInfo(t *testing.T) {
	info := WclapInfo{
		ClapVersion: ClapVersion{1, 2, 7},
		Path:        "wclap://instance/0",
		Plugins: []PluginDescriptor{
			{ID: "my.gain", Name: "Gain", Vendor: "Acme", Description: "", Features: []string{"audio-effect"}},
		},
	}

	data, err := Marshal("wclap-info", info)
	require.NoError(t, err)

	var out WclapInfo
	require.NoError(t, cbor.Unmarshal(data, &out))
	require.Equal(t, info, out)
}

func TestUnmarshalCreatePluginID(t *testing.T) {
	data, err := Marshal("id", "my.gain")
	require.NoError(t, err)

	var id string
	require.NoError(t, Unmarshal(data, &id))
	require.Equal(t, "my.gain", id)
}

func TestNull(t *testing.T) {
	data, err := Null()
	require.NoError(t, err)
	require.NotEmpty(t, data)
}
