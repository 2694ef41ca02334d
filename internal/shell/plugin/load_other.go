//go:build !linux

package plugin

import "fmt"

// loadSymbol is unsupported outside Linux: Go's plugin package only builds
// .so files under buildmode=plugin on Linux.
func loadSymbol(path string) (Module, error) {
	return nil, fmt.Errorf("plugin: dynamic loading is not supported on this platform (%s)", path)
}
