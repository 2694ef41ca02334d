// Package tty implements the Terminal Arbiter: the single point through
// which controlling-terminal ownership passes between the shell's own
// process group and a foreground pipeline's.
package tty

import (
	"fmt"
	"os"
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/esh-shell/esh/internal/shell/signals"
)

// State is a snapshot of terminal attributes, captured once at startup and
// again each time a pipeline relinquishes the terminal while stopped.
type State struct {
	termios unix.Termios
}

// Arbiter owns the shell's controlling-terminal file descriptor and brokers
// every handoff of terminal ownership.
type Arbiter struct {
	fd int
}

// Init acquires the shell's controlling terminal (stdin, conventionally)
// and snapshots its current attributes. It runs once, at startup; every
// later handoff reuses the fd captured here.
func Init() (*Arbiter, *State, error) {
	fd := int(os.Stdin.Fd())
	a := &Arbiter{fd: fd}

	state, err := a.Snapshot()
	if err != nil {
		// Not every invocation of esh runs with a controlling terminal
		// (piped input, test harnesses). Fall back to a zeroed State so the
		// shell can still run non-interactively.
		return a, &State{}, nil
	}
	return a, state, nil
}

// FD returns the shell's controlling terminal file descriptor.
func (a *Arbiter) FD() int { return a.fd }

// IsTerminal reports whether the Arbiter's fd is backed by a real tty.
func (a *Arbiter) IsTerminal() bool {
	_, err := unix.IoctlGetTermios(a.fd, unix.TCGETS)
	return err == nil
}

// Snapshot captures the terminal's current attributes.
func (a *Arbiter) Snapshot() (*State, error) {
	t, err := unix.IoctlGetTermios(a.fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("tty: snapshot: %w", err)
	}
	return &State{termios: *t}, nil
}

// Restore applies a previously captured State to the terminal.
func (a *Arbiter) Restore(s *State) error {
	if s == nil {
		return nil
	}
	if err := unix.IoctlSetTermios(a.fd, unix.TCSETS, &s.termios); err != nil {
		return fmt.Errorf("tty: restore: %w", err)
	}
	return nil
}

// GiveTerminalTo assigns the controlling terminal to pgrp, optionally
// restoring previously-saved attributes atomically afterwards. The
// assignment blocks SIGTTOU for its duration so the shell, which may no
// longer be the foreground group once this call returns, cannot suspend
// itself writing the ioctl. A failure is returned to the caller as an
// error; GiveTerminalTo does not terminate the shell.
func (a *Arbiter) GiveTerminalTo(pgrp int, restore *State) error {
	signals.Block(syscall.SIGTTOU)
	defer signals.Unblock(syscall.SIGTTOU)

	if err := tcsetpgrp(a.fd, pgrp); err != nil {
		return fmt.Errorf("tty: tcsetpgrp(%d): %w", pgrp, err)
	}

	if restore != nil {
		if err := a.Restore(restore); err != nil {
			return err
		}
	}
	return nil
}

// tcsetpgrp sets the foreground process group of the terminal at fd. The
// standard library exposes no wrapper for TIOCSPGRP, so this issues the
// ioctl directly, the same way golang.org/x/sys/unix's own termios helpers
// do internally.
func tcsetpgrp(fd, pgrp int) error {
	arg := int32(pgrp)
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.TIOCSPGRP), uintptr(unsafe.Pointer(&arg)))
	if errno != 0 {
		return errno
	}
	return nil
}

// tcgetpgrp returns the foreground process group of the terminal at fd.
func tcgetpgrp(fd int) (int, error) {
	var arg int32
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), uintptr(unix.TIOCGPGRP), uintptr(unsafe.Pointer(&arg)))
	if errno != 0 {
		return 0, errno
	}
	return int(arg), nil
}
