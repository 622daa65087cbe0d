package main

/*
#include <stdint.h>
#include <stdbool.h>
#include <stdlib.h>

// Forward declarations of the functions exported by Go, for the benefit
// of a C header generated from this build (go build -buildmode=c-shared
// also emits its own, but embedding hosts vendoring a hand-written header
// expect these names to match exactly).

void   *new_guest_instance(uint8_t *wasm, uint32_t wasm_len, char *resource_path);
void    remove_guest_instance(void *guest_instance);

void   *createBytes(void);
void    destroyBytes(void *bytes);
uint8_t *getBytesData(void *bytes);
uint32_t getBytesLength(void *bytes);
void     resizeBytes(void *bytes, uint32_t length);

void   *make_hosted(void *guest_instance);
void    remove_hosted(void *hosted_wclap);
void    get_info(void *hosted_wclap, void *bytes);
void   *create_plugin(void *hosted_wclap, void *bytes);

void    destroy_plugin(void *plugin);
void    plugin_main_thread(void *plugin);
void    plugin_get_info(void *plugin, void *bytes);
void    plugin_message(void *plugin, void *bytes);
bool    plugin_get_resource(void *plugin, void *bytes);
void    plugin_get_params(void *plugin, void *bytes);
void    plugin_get_param(void *plugin, uint32_t id, void *bytes);
void    plugin_set_param(void *plugin, uint32_t id, double value);
void    plugin_params_flush(void *plugin);
bool    plugin_start(void *plugin, double sample_rate, uint32_t min_frames, uint32_t max_frames, void *bytes);
void    plugin_stop(void *plugin);
bool    plugin_accept_event(void *plugin, void *bytes);
bool    plugin_save_state(void *plugin, void *bytes);
bool    plugin_load_state(void *plugin, void *bytes);
uint32_t plugin_process(void *plugin, uint32_t block_length);
*/
import "C"

import (
	"github.com/justyntemme/wclaphost/pkg/bridge"
)

func main() {
	// When built with -buildmode=c-shared, this isn't called directly;
	// the embedding host loads the library and calls the exported
	// functions above. Running bridge.Main() here just gives the shared
	// library one executed Go entry point to log its own startup from.
	bridge.Main()
}
