//go:build llama

package llama

// #include <stdbool.h>
// #include <string.h>
// #include "binding.h"
import "C"
import "unsafe"

//export tokenCallback
func tokenCallback(statePtr unsafe.Pointer, token *C.char) C.bool {
	var raw []byte
	if token != nil {
		raw = C.GoBytes(unsafe.Pointer(token), C.int(C.strlen(token)))
	}
	return C.bool(processCallbacks.Dispatch(Handle(statePtr), raw))
}
