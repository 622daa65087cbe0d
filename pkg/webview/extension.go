// Package webview binds a plug-in's non-upstream clap.webview extension:
// the URI a GUI frame should load, the postMessage-style receive channel,
// and get_resource, which shares pkg/state's stream buffer with
// state.save/state.load since all three ultimately stream bytes out of
// the same guest call.
package webview

import (
	"context"
	"fmt"

	"github.com/justyntemme/wclaphost/pkg/arena"
	"github.com/justyntemme/wclaphost/pkg/cborcodec"
	"github.com/justyntemme/wclaphost/pkg/clapdefs"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/state"
	"github.com/justyntemme/wclaphost/pkg/xptr"
)

// Extension is the host's binding to a plug-in's clap_plugin_webview
// function table, resolved via get_extension(ExtWebview). A nil
// *Extension means the plug-in doesn't implement it; every function in
// this package treats that as a no-op/null-returning path rather than an
// error, matching get_param's "no params extension" convention.
type Extension struct {
	Plugin      uint32
	getURI      uint32
	receive     uint32
	getResource uint32
}

// Bind reads the three clap_plugin_webview function-table slots out of
// guest memory at extPtr.
func Bind(ctx context.Context, g guest.Instance, pluginPtr, extPtr uint32) (*Extension, error) {
	l := clapdefs.WebviewExtLayout
	read := func(off uint32) (uint32, error) {
		return guest.ReadU32(ctx, g, xptr.Pointer[uint32]{Offset: extPtr + off})
	}
	getURI, err := read(l.GetURI)
	if err != nil {
		return nil, fmt.Errorf("webview: bind get_uri: %w", err)
	}
	receive, err := read(l.Receive)
	if err != nil {
		return nil, fmt.Errorf("webview: bind receive: %w", err)
	}
	getResource, err := read(l.GetResource)
	if err != nil {
		return nil, fmt.Errorf("webview: bind get_resource: %w", err)
	}
	return &Extension{Plugin: pluginPtr, getURI: getURI, receive: receive, getResource: getResource}, nil
}

// GetURI calls webview.get_uri(buf, size), returning the length the
// plug-in reports writing.
func (e *Extension) GetURI(ctx context.Context, g guest.Instance, bufPtr, size uint32) (uint32, error) {
	res, err := g.Call(ctx, e.getURI, guest.I32Value(e.Plugin), guest.I32Value(bufPtr), guest.I32Value(size))
	if err != nil {
		return 0, fmt.Errorf("webview: get_uri: %w", err)
	}
	return res.I32, nil
}

// Receive calls webview.receive(ptr, len).
func (e *Extension) Receive(ctx context.Context, g guest.Instance, ptr, length uint32) error {
	if _, err := g.Call(ctx, e.receive, guest.I32Value(e.Plugin), guest.I32Value(ptr), guest.I32Value(length)); err != nil {
		return fmt.Errorf("webview: receive: %w", err)
	}
	return nil
}

// GetResource calls webview.get_resource(path, mime, mimeSize, ostream).
func (e *Extension) GetResource(ctx context.Context, g guest.Instance, pathPtr, mimePtr, mimeSize, ostreamPtr uint32) (bool, error) {
	res, err := g.Call(ctx, e.getResource,
		guest.I32Value(e.Plugin), guest.I32Value(pathPtr),
		guest.I32Value(mimePtr), guest.I32Value(mimeSize), guest.I32Value(ostreamPtr))
	if err != nil {
		return false, fmt.Errorf("webview: get_resource: %w", err)
	}
	return res.I32 != 0, nil
}

// ReadURI implements the webview-URI half of get_info: it reserves a
// 2048-byte guest buffer, calls get_uri(buf, 2047), and copies the
// result back only if the reported length is in (0, 2048); a zero or
// out-of-range length yields an empty string, which the caller reports
// as a null webview field.
func ReadURI(ctx context.Context, g guest.Instance, scope *arena.Scoped, ext *Extension) (string, error) {
	if ext == nil {
		return "", nil
	}
	const bufSize = 2048
	bufPtr, err := scope.Alloc(bufSize)
	if err != nil {
		return "", fmt.Errorf("webview: read uri: allocate scratch: %w", err)
	}
	n, err := ext.GetURI(ctx, g, bufPtr, bufSize-1)
	if err != nil {
		return "", err
	}
	if n == 0 || n >= bufSize {
		return "", nil
	}
	data := make([]byte, n)
	if err := g.Read(ctx, bufPtr, data); err != nil {
		return "", fmt.Errorf("webview: read uri: %w", err)
	}
	return string(data), nil
}

// Message implements message(bytes): a no-op when ext is nil, otherwise
// bytes is copied into a scoped guest region and webview.receive is
// called with its pointer and length.
func Message(ctx context.Context, g guest.Instance, scope *arena.Scoped, ext *Extension, data []byte) error {
	if ext == nil {
		return nil
	}
	ptr, err := scope.Alloc(uint32(len(data)))
	if err != nil {
		return fmt.Errorf("webview: message: allocate scratch: %w", err)
	}
	if err := g.Write(ctx, ptr, data); err != nil {
		return fmt.Errorf("webview: message: %w", err)
	}
	return ext.Receive(ctx, g, ptr, uint32(len(data)))
}

// GetResourceResult implements get_resource(path, w): a nil ext or a
// plug-in reporting failure both yield a nil result, which the caller
// CBOR-encodes as null. ostreamPtr is the clap_ostream struct built once
// at plugin construction and reused by state.Save, sharing buf's lock
// discipline across the whole call.
func GetResourceResult(ctx context.Context, g guest.Instance, scope *arena.Scoped, buf *state.Buffer, ext *Extension, ostreamPtr uint32, path string) (*cborcodec.Resource, error) {
	if ext == nil {
		return nil, nil
	}

	pathPtr, err := scope.WriteString(ctx, g, path)
	if err != nil {
		return nil, fmt.Errorf("webview: get_resource: write path: %w", err)
	}
	const mimeSize = 255
	mimePtr, err := scope.Alloc(mimeSize)
	if err != nil {
		return nil, fmt.Errorf("webview: get_resource: allocate mime scratch: %w", err)
	}

	buf.Lock()
	defer buf.Unlock()
	buf.ResetLocked()

	ok, err := ext.GetResource(ctx, g, pathPtr, mimePtr, mimeSize, ostreamPtr)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	mimeBuf := make([]byte, mimeSize)
	if err := g.Read(ctx, mimePtr, mimeBuf); err != nil {
		return nil, fmt.Errorf("webview: get_resource: read mime: %w", err)
	}
	mimeBuf[mimeSize-1] = 0
	n := 0
	for n < len(mimeBuf) && mimeBuf[n] != 0 {
		n++
	}

	return &cborcodec.Resource{Type: string(mimeBuf[:n]), Bytes: buf.BytesLocked()}, nil
}
