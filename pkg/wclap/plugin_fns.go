package wclap

import (
	"context"
	"fmt"

	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/xptr"
)

// pluginFns caches the clap_plugin function-table indices a plug-in
// reports, read once at creation the same way pkg/param and pkg/state
// cache their own extension tables rather than re-reading guest memory
// on every call.
type pluginFns struct {
	init            uint32
	destroy         uint32
	activate        uint32
	deactivate      uint32
	startProcessing uint32
	stopProcessing  uint32
	reset           uint32
	process         uint32
	getExtension    uint32
	onMainThread    uint32
}

func bindPluginFns(ctx context.Context, g guest.Instance, pluginPtr uint32) (pluginFns, error) {
	l := clapdefs.PluginLayout
	read := func(off uint32) (uint32, error) {
		return guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: pluginPtr + off})
	}

	var fns pluginFns
	var err error
	for _, f := range []struct {
		off uint32
		out *uint32
	}{
		{l.Init, &fns.init},
		{l.Destroy, &fns.destroy},
		{l.Activate, &fns.activate},
		{l.Deactivate, &fns.deactivate},
		{l.StartProcessing, &fns.startProcessing},
		{l.StopProcessing, &fns.stopProcessing},
		{l.Reset, &fns.reset},
		{l.Process, &fns.process},
		{l.GetExtension, &fns.getExtension},
		{l.OnMainThread, &fns.onMainThread},
	} {
		*f.out, err = read(f.off)
		if err != nil {
			return pluginFns{}, fmt.Errorf("wclap: bind plugin function table: %w", err)
		}
	}
	return fns, nil
}
