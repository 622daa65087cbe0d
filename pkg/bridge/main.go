package bridge

// #include <stdlib.h>
import "C"

// Main is the entry point for the bridge when built as a shared library.
// It isn't called directly by the embedding host; cmd/wclaphost's main()
// calls it once so the shared library has somewhere to run its own
// startup logging from, since a c-shared build has no other executed
// Go entry point.
func Main() {
	log.Info().Msg("wclaphost bridge initialized")
}
