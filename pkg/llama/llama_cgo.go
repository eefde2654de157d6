//go:build llama

package llama

// cgo link directives for the native binding.
// - libbinding.a (binding.cpp plus the llama.cpp objects) is expected next to
//   this package at link time.
// - An rpath of $ORIGIN lets the runtime loader find shared ggml backends in the
//   same directory as the built binary.

/*
#cgo CXXFLAGS: -I${SRCDIR}/llama.cpp/common -I${SRCDIR}/llama.cpp
#cgo LDFLAGS: -Wl,-rpath,'$ORIGIN' -L${SRCDIR}/ -lbinding -lm -lstdc++
#cgo darwin LDFLAGS: -framework Accelerate -framework Foundation -framework Metal -framework MetalKit
#cgo windows LDFLAGS: -static -static-libgcc -static-libstdc++ -lpthread
*/
import "C"
