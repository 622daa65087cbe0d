package state

import (
	"context"
	"fmt"

	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/xptr"
)

// Extension is the host's binding to a plug-in's clap_plugin_state
// function table, resolved once via get_extension(ExtState).
type Extension struct {
	Plugin uint32
	save   uint32
	load   uint32
}

// Bind reads the two clap_plugin_state function-table slots out of guest
// memory at extPtr.
func Bind(ctx context.Context, g guest.Instance, pluginPtr, extPtr uint32) (*Extension, error) {
	l := clapdefs.StateExtLayout
	save, err := guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: extPtr + l.Save})
	if err != nil {
		return nil, fmt.Errorf("state: bind save: %w", err)
	}
	load, err := guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: extPtr + l.Load})
	if err != nil {
		return nil, fmt.Errorf("state: bind load: %w", err)
	}
	return &Extension{Plugin: pluginPtr, save: save, load: load}, nil
}

// Save calls state.save(ostream_ptr).
func (e *Extension) Save(ctx context.Context, g guest.Instance, ostreamPtr uint32) (bool, error) {
	res, err := g.Call(ctx, e.save, guest.I32Value(e.Plugin), guest.I32Value(ostreamPtr))
	if err != nil {
		return false, fmt.Errorf("state: save: %w", err)
	}
	return res.I32 != 0, nil
}

// Load calls state.load(istream_ptr).
func (e *Extension) Load(ctx context.Context, g guest.Instance, istreamPtr uint32) (bool, error) {
	res, err := g.Call(ctx, e.load, guest.I32Value(e.Plugin), guest.I32Value(istreamPtr))
	if err != nil {
		return false, fmt.Errorf("state: load: %w", err)
	}
	return res.I32 != 0, nil
}
