package state

import (
	"context"
	"errors"

	"github.com/justyntemme/wclaphost/pkg/guest"
)

// ErrSaveFailed is returned when plugin_state.save reports failure.
var ErrSaveFailed = errors.New("state: plugin_state.save returned false")

// Save implements save_state: under buf's lock, the buffer is emptied,
// state.save(ostream_ptr) is called, and on success the resulting bytes
// are copied out. ostreamPtr is the clap_ostream struct built once at
// plugin construction, whose write trampoline serves buf.WriteChunkLocked
// while this call is on the stack.
func Save(ctx context.Context, g guest.Instance, buf *Buffer, ext *Extension, ostreamPtr uint32) ([]byte, error) {
	buf.Lock()
	defer buf.Unlock()

	buf.ResetLocked()
	ok, err := ext.Save(ctx, g, ostreamPtr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSaveFailed
	}
	return buf.BytesLocked(), nil
}

// Load implements load_state: under buf's lock, data is assigned into the
// buffer with its read cursor reset to 0, then state.load(istream_ptr) is
// called; its reads are served from the buffer via the istream
// trampoline, which calls buf.ReadChunkLocked while this call is on the
// stack.
func Load(ctx context.Context, g guest.Instance, buf *Buffer, ext *Extension, istreamPtr uint32, data []byte) (bool, error) {
	buf.Lock()
	defer buf.Unlock()

	buf.SetBytesLocked(data)
	return ext.Load(ctx, g, istreamPtr)
}
