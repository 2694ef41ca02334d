// Package cli defines the esh command-line entrypoint.
package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/esh-shell/esh/internal/log"
	"github.com/esh-shell/esh/internal/shell/plugin"
	"github.com/esh-shell/esh/internal/shell/repl"
)

var (
	helpFlag      = flag.Bool("h", false, "print usage and exit")
	plugindirFlag = flag.String("p", "", "load plugins from the given directory")
)

const (
	ecSuccess = iota
	// ecUsage is not returned by Run: -h exits with ecSuccess, and a flag
	// that cannot be parsed makes flag.Parse exit the process itself.
	ecUsage
	// ecPlugin indicates a plugin directory was given but could not be loaded.
	ecPlugin
	// ecShell indicates the shell itself could not be constructed.
	ecShell
)

var logger = log.New("esh")

// Run is the entrypoint of the esh executable.
func Run() int {
	flag.Parse()

	if *helpFlag {
		return help("")
	}

	registry := plugin.NewRegistry()

	shell, err := repl.New(registry)
	if err != nil {
		logger.Errorf("construct shell: %s", err)
		return ecShell
	}
	defer shell.Close()

	if *plugindirFlag != "" {
		if err := registry.LoadDir(*plugindirFlag, shell); err != nil {
			logger.Errorf("load plugins from %q: %s", *plugindirFlag, err)
			return ecPlugin
		}
		if watcher, err := registry.Watch(*plugindirFlag, shell); err != nil {
			logger.Warnf("watch plugin directory %q: %s", *plugindirFlag, err)
		} else {
			defer watcher.Close()
		}
	}

	if err := shell.Run(); err != nil {
		logger.Errorf("shell exited with error: %s", err)
		return ecShell
	}
	return ecSuccess
}

// help outputs usage information. text, if non-empty, is printed first as a
// notice.
func help(text string) int {
	var b strings.Builder
	if text != "" {
		b.WriteString(fmt.Sprintf("\nNotice: %s\n", text))
	}

	b.WriteString(
		`
esh is a POSIX-style job-control shell.

Usage:
  esh [-h] [-p <plugindir>]

Flags:
  -h          print this message and exit
  -p          load plugins (*.so) from the given directory
`)
	fmt.Fprint(os.Stdout, b.String())
	return ecSuccess
}
