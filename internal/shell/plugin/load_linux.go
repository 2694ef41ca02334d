//go:build linux

package plugin

import (
	"fmt"
	gplugin "plugin"
)

// loadSymbol opens the .so at path and looks up its exported "Plugin"
// symbol, which must satisfy Module.
func loadSymbol(path string) (Module, error) {
	p, err := gplugin.Open(path)
	if err != nil {
		return nil, fmt.Errorf("plugin: open %s: %w", path, err)
	}

	sym, err := p.Lookup("Plugin")
	if err != nil {
		return nil, fmt.Errorf("plugin: %s: missing exported Plugin symbol: %w", path, err)
	}

	m, ok := sym.(Module)
	if !ok {
		return nil, fmt.Errorf("plugin: %s: exported Plugin does not implement Module", path)
	}
	return m, nil
}
