// Package bridge exports the C-ABI wclaphost's embedding host calls
// through: make_hosted/get_info/create_plugin and the plugin_* family,
// plus the bytes*/guest_instance* opaque-handle helpers they depend on.
// Every handle this package mints is a runtime/cgo.Handle over one of
// the four handle types (*wclap.HostedWclap, *wclap.HostedPlugin,
// *bytesbuf.Buffer, guest.Instance); the C side only ever sees the
// handle's integer value as an opaque pointer.
package bridge

// #include <stdint.h>
// #include <stdbool.h>
// #include <stdlib.h>
import "C"

import (
	"context"
	"errors"
	"runtime/cgo"
	"unsafe"

	"github.com/justyntemme/wclaphost/pkg/bytesbuf"
	"github.com/justyntemme/wclaphost/pkg/cborcodec"
	"github.com/justyntemme/wclaphost/pkg/guest"
	"github.com/justyntemme/wclaphost/pkg/guest/wazeroguest"
	"github.com/justyntemme/wclaphost/pkg/wclap"
	"github.com/justyntemme/wclaphost/pkg/wlog"
)

var log = wlog.New("bridge")

// bgCtx is the context every exported entry point runs under. None of
// these calls are cancellable from the C side; a misbehaving guest call
// is the embedding runtime's problem to kill at the process level, same
// as the rest of wclap's call discipline.
var bgCtx = context.Background()

func handlePtr(h cgo.Handle) unsafe.Pointer {
	return unsafe.Pointer(uintptr(h))
}

func bytesOf(ptr unsafe.Pointer) *bytesbuf.Buffer {
	if ptr == nil {
		return nil
	}
	b, _ := cgo.Handle(uintptr(ptr)).Value().(*bytesbuf.Buffer)
	return b
}

func hostedOf(ptr unsafe.Pointer) *wclap.HostedWclap {
	if ptr == nil {
		return nil
	}
	w, _ := cgo.Handle(uintptr(ptr)).Value().(*wclap.HostedWclap)
	return w
}

func pluginOf(ptr unsafe.Pointer) *wclap.HostedPlugin {
	if ptr == nil {
		return nil
	}
	p, _ := cgo.Handle(uintptr(ptr)).Value().(*wclap.HostedPlugin)
	return p
}

func guestOf(ptr unsafe.Pointer) guest.Instance {
	if ptr == nil {
		return nil
	}
	g, _ := cgo.Handle(uintptr(ptr)).Value().(guest.Instance)
	return g
}

// writeCBOR marshals v into out, falling back to CBOR null and a warning
// log on a marshal failure rather than leaving out untouched.
func writeCBOR(out *bytesbuf.Buffer, schema string, v any) {
	if out == nil {
		return
	}
	data, err := cborcodec.Marshal(schema, v)
	if err != nil {
		log.Warn().Err(err).Str("schema", schema).Msg("cbor marshal failed")
		data, _ = cborcodec.Null()
	}
	out.Set(data)
}

// --- guest_instance* lifecycle -------------------------------------------
//
// make_hosted takes a guest_instance* as given; these two exports are
// the plumbing an embedding runtime needs to actually produce one.

//export new_guest_instance
func new_guest_instance(wasmPtr *C.uint8_t, wasmLen C.uint32_t, resourcePath *C.char) unsafe.Pointer {
	wasm := C.GoBytes(unsafe.Pointer(wasmPtr), C.int(wasmLen))
	path := C.GoString(resourcePath)

	g, err := wazeroguest.New(bgCtx, guest.Config{Wasm: wasm, ResourcePath: path})
	if err != nil {
		log.Warn().Err(err).Msg("new_guest_instance failed")
		return nil
	}
	var gi guest.Instance = g
	return handlePtr(cgo.NewHandle(gi))
}

//export remove_guest_instance
func remove_guest_instance(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	h := cgo.Handle(uintptr(ptr))
	if g, ok := h.Value().(guest.Instance); ok {
		if err := g.Close(bgCtx); err != nil {
			log.Warn().Err(err).Msg("remove_guest_instance: close failed")
		}
	}
	h.Delete()
}

// --- bytes* -----------------------------------------------------------

//export createBytes
func createBytes() unsafe.Pointer {
	return handlePtr(cgo.NewHandle(bytesbuf.New()))
}

//export destroyBytes
func destroyBytes(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	cgo.Handle(uintptr(ptr)).Delete()
}

//export getBytesData
func getBytesData(ptr unsafe.Pointer) *C.uint8_t {
	b := bytesOf(ptr)
	if b == nil || b.Len() == 0 {
		return nil
	}
	return (*C.uint8_t)(unsafe.Pointer(&b.Data()[0]))
}

//export getBytesLength
func getBytesLength(ptr unsafe.Pointer) C.uint32_t {
	b := bytesOf(ptr)
	if b == nil {
		return 0
	}
	return C.uint32_t(b.Len())
}

//export resizeBytes
func resizeBytes(ptr unsafe.Pointer, length C.uint32_t) {
	b := bytesOf(ptr)
	if b == nil {
		return
	}
	b.Resize(int(length))
}

// --- hosted_wclap* ------------------------------------------------------
//
// make_hosted takes ownership of the guest instance: remove_hosted calls
// entry.deinit and closes it. remove_guest_instance is only for a
// guest_instance* that was never handed to make_hosted (or for which
// make_hosted returned null).

//export make_hosted
func make_hosted(guestPtr unsafe.Pointer) unsafe.Pointer {
	g := guestOf(guestPtr)
	if g == nil {
		log.Warn().Msg("make_hosted: invalid guest_instance*")
		return nil
	}

	w, err := wclap.New(bgCtx, g, nil)
	if err != nil {
		log.Warn().Err(err).Msg("make_hosted failed")
		return nil
	}
	return handlePtr(cgo.NewHandle(w))
}

//export remove_hosted
func remove_hosted(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	h := cgo.Handle(uintptr(ptr))
	if w, ok := h.Value().(*wclap.HostedWclap); ok {
		w.Close(bgCtx)
	}
	h.Delete()
}

//export get_info
func get_info(hostedPtr, bytesPtr unsafe.Pointer) {
	w := hostedOf(hostedPtr)
	out := bytesOf(bytesPtr)
	if w == nil {
		writeCBOR(out, "WclapInfo", nil)
		return
	}
	info, err := w.GetInfo(bgCtx)
	if err != nil {
		log.Warn().Err(err).Msg("get_info failed")
		writeCBOR(out, "WclapInfo", nil)
		return
	}
	writeCBOR(out, "WclapInfo", info)
}

//export create_plugin
func create_plugin(hostedPtr, idBytesPtr unsafe.Pointer) unsafe.Pointer {
	w := hostedOf(hostedPtr)
	in := bytesOf(idBytesPtr)
	if w == nil || in == nil {
		return nil
	}

	var id string
	if err := cborcodec.Unmarshal(in.Data(), &id); err != nil {
		log.Warn().Err(err).Msg("create_plugin: bad id payload")
		return nil
	}

	p, err := w.CreatePlugin(bgCtx, id)
	if err != nil {
		log.Warn().Err(err).Str("id", id).Msg("create_plugin failed")
		return nil
	}
	return handlePtr(cgo.NewHandle(p))
}

// --- plugin* --------------------------------------------------------

//export destroy_plugin
func destroy_plugin(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	h := cgo.Handle(uintptr(ptr))
	if p, ok := h.Value().(*wclap.HostedPlugin); ok {
		p.Destroy(bgCtx)
	}
	h.Delete()
}

//export plugin_main_thread
func plugin_main_thread(ptr unsafe.Pointer) {
	p := pluginOf(ptr)
	if p == nil {
		return
	}
	if err := p.MainThread(bgCtx); err != nil {
		log.Warn().Err(err).Msg("plugin_main_thread failed")
	}
}

//export plugin_get_info
func plugin_get_info(ptr, bytesPtr unsafe.Pointer) {
	p := pluginOf(ptr)
	out := bytesOf(bytesPtr)
	if p == nil {
		writeCBOR(out, "PluginInfo", nil)
		return
	}
	info, err := p.GetInfo(bgCtx)
	if err != nil {
		log.Warn().Err(err).Msg("plugin_get_info failed")
		writeCBOR(out, "PluginInfo", nil)
		return
	}
	writeCBOR(out, "PluginInfo", info)
}

//export plugin_message
func plugin_message(ptr, bytesPtr unsafe.Pointer) {
	p := pluginOf(ptr)
	in := bytesOf(bytesPtr)
	if p == nil || in == nil {
		return
	}
	if err := p.Message(bgCtx, in.Data()); err != nil {
		log.Warn().Err(err).Msg("plugin_message failed")
	}
}

//export plugin_get_resource
func plugin_get_resource(ptr, bytesPtr unsafe.Pointer) C.bool {
	p := pluginOf(ptr)
	buf := bytesOf(bytesPtr)
	if p == nil || buf == nil {
		return C.bool(false)
	}
	path := string(buf.Data())

	res, err := p.GetResource(bgCtx, path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("plugin_get_resource failed")
		writeCBOR(buf, "Resource", nil)
		return C.bool(false)
	}
	if res == nil {
		writeCBOR(buf, "Resource", nil)
		return C.bool(false)
	}
	writeCBOR(buf, "Resource", res)
	return C.bool(true)
}

//export plugin_get_params
func plugin_get_params(ptr, bytesPtr unsafe.Pointer) {
	p := pluginOf(ptr)
	out := bytesOf(bytesPtr)
	if p == nil {
		writeCBOR(out, "[]ParamInfo", nil)
		return
	}
	params, err := p.GetParams(bgCtx)
	if err != nil {
		log.Warn().Err(err).Msg("plugin_get_params failed")
		writeCBOR(out, "[]ParamInfo", nil)
		return
	}
	writeCBOR(out, "[]ParamInfo", params)
}

//export plugin_get_param
func plugin_get_param(ptr unsafe.Pointer, id C.uint32_t, bytesPtr unsafe.Pointer) {
	p := pluginOf(ptr)
	out := bytesOf(bytesPtr)
	if p == nil {
		writeCBOR(out, "ParamValue", cborcodec.ParamValueFailedMessage)
		return
	}
	ok, value, err := p.GetParam(bgCtx, uint32(id))
	if errors.Is(err, wclap.ErrNoParamsExtension) {
		writeCBOR(out, "ParamValue", nil)
		return
	}
	if err != nil {
		log.Warn().Err(err).Uint32("id", uint32(id)).Msg("plugin_get_param failed")
		writeCBOR(out, "ParamValue", cborcodec.ParamValueFailedMessage)
		return
	}
	if !ok {
		writeCBOR(out, "ParamValue", cborcodec.ParamValueFailedMessage)
		return
	}
	writeCBOR(out, "ParamValue", value)
}

//export plugin_set_param
func plugin_set_param(ptr unsafe.Pointer, id C.uint32_t, value C.double) {
	p := pluginOf(ptr)
	if p == nil {
		return
	}
	p.SetParam(uint32(id), float64(value))
}

//export plugin_params_flush
func plugin_params_flush(ptr unsafe.Pointer) {
	p := pluginOf(ptr)
	if p == nil {
		return
	}
	if err := p.ParamsFlush(bgCtx); err != nil {
		log.Warn().Err(err).Msg("plugin_params_flush failed")
	}
}

//export plugin_start
func plugin_start(ptr unsafe.Pointer, sampleRate C.double, minFrames, maxFrames C.uint32_t, bytesPtr unsafe.Pointer) C.bool {
	p := pluginOf(ptr)
	out := bytesOf(bytesPtr)
	if p == nil {
		return C.bool(false)
	}
	layout, err := p.Start(bgCtx, float64(sampleRate), uint32(minFrames), uint32(maxFrames))
	if err != nil {
		log.Warn().Err(err).Msg("plugin_start failed")
		return C.bool(false)
	}
	writeCBOR(out, "StartLayout", layout)
	return C.bool(true)
}

//export plugin_stop
func plugin_stop(ptr unsafe.Pointer) {
	p := pluginOf(ptr)
	if p == nil {
		return
	}
	if err := p.Stop(bgCtx); err != nil {
		log.Warn().Err(err).Msg("plugin_stop failed")
	}
}

//export plugin_accept_event
func plugin_accept_event(ptr, bytesPtr unsafe.Pointer) C.bool {
	p := pluginOf(ptr)
	in := bytesOf(bytesPtr)
	if p == nil || in == nil {
		return C.bool(false)
	}
	return C.bool(p.AcceptEvent(in.Data()))
}

//export plugin_save_state
func plugin_save_state(ptr, bytesPtr unsafe.Pointer) C.bool {
	p := pluginOf(ptr)
	out := bytesOf(bytesPtr)
	if p == nil || out == nil {
		return C.bool(false)
	}
	data, err := p.SaveState(bgCtx)
	if err != nil {
		log.Warn().Err(err).Msg("plugin_save_state failed")
		return C.bool(false)
	}
	out.Set(data)
	return C.bool(true)
}

//export plugin_load_state
func plugin_load_state(ptr, bytesPtr unsafe.Pointer) C.bool {
	p := pluginOf(ptr)
	in := bytesOf(bytesPtr)
	if p == nil || in == nil {
		return C.bool(false)
	}
	ok, err := p.LoadState(bgCtx, in.Data())
	if err != nil {
		log.Warn().Err(err).Msg("plugin_load_state failed")
		return C.bool(false)
	}
	return C.bool(ok)
}

//export plugin_process
func plugin_process(ptr unsafe.Pointer, blockLength C.uint32_t) C.uint32_t {
	p := pluginOf(ptr)
	if p == nil {
		return C.uint32_t(0)
	}
	status, err := p.Process(bgCtx, uint32(blockLength))
	if err != nil {
		log.Warn().Err(err).Msg("plugin_process failed")
	}
	return C.uint32_t(uint32(status))
}
