// Package signals is the Signal Hub: it converts asynchronously delivered
// SIGCHLD and SIGTSTP into events consumed synchronously by the REPL, and
// offers a block/unblock bracket used as a critical section during launch
// bookkeeping.
//
// Go's os/signal delivers signals onto a channel from a dedicated
// goroutine rather than an interrupt context, so the reaper genuinely
// runs in parallel with the REPL. The SIGCHLD bracket is therefore backed
// by a mutex shared with the reaper goroutine rather than by masking the
// signal itself.
package signals

import (
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// ChildEvent is a single reaped child-status transition.
type ChildEvent struct {
	Pid    int
	Status syscall.WaitStatus
}

// Hub installs the shell's signal handlers and exposes the events they
// observe.
type Hub struct {
	events chan ChildEvent
	ctrlZ  chan struct{}

	// childMu brackets access to the child-status stream. BlockChild holds
	// it for the duration of the Pipeline Launcher's fork loop so the
	// reaper goroutine cannot observe a just-forked pid before its entry is
	// recorded in the Job Table.
	childMu sync.Mutex
}

// New installs handlers for SIGCHLD and SIGTSTP and starts draining them
// into the Hub's event channels.
func New() *Hub {
	h := &Hub{
		events: make(chan ChildEvent, 64),
		ctrlZ:  make(chan struct{}, 1),
	}

	sigCh := make(chan os.Signal, 16)
	signal.Notify(sigCh, syscall.SIGCHLD, syscall.SIGTSTP)
	go h.loop(sigCh)

	return h
}

func (h *Hub) loop(sigCh chan os.Signal) {
	for sig := range sigCh {
		switch sig {
		case syscall.SIGCHLD:
			h.drainChildren()
		case syscall.SIGTSTP:
			select {
			case h.ctrlZ <- struct{}{}:
			default:
			}
		}
	}
}

// drainChildren non-blockingly reaps every child-status event currently
// available, reporting stopped and continued children as well as
// exited/killed ones, and publishes each to Events().
func (h *Hub) drainChildren() {
	h.childMu.Lock()
	defer h.childMu.Unlock()

	for {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(-1, &ws, syscall.WNOHANG|syscall.WUNTRACED|syscall.WCONTINUED, nil)
		if err == syscall.EINTR {
			continue
		}
		if pid <= 0 || err != nil {
			return
		}
		// The send may block briefly when the buffer fills, never dropping
		// an event: the REPL's dispatch goroutine is the sole consumer and
		// always drains. Losing an event here would strand a foreground
		// waiter, since no other code path reaps children.
		h.events <- ChildEvent{Pid: pid, Status: ws}
	}
}

// Events returns the channel of reaped child-status transitions. The REPL
// Driver's dispatch goroutine is its single consumer: every transition,
// foreground or background, funnels through it into the Status Reactor.
func (h *Hub) Events() <-chan ChildEvent { return h.events }

// CtrlZ returns a channel signalled each time SIGTSTP is delivered to the
// shell itself (as opposed to a foreground pipeline, which the kernel
// signals directly). Consumers use it purely cosmetically, to erase the
// terminal's own "^Z" echo; it never touches job state.
func (h *Hub) CtrlZ() <-chan struct{} { return h.ctrlZ }

// BlockChild begins a critical section against the asynchronous reaper.
// The Pipeline Launcher holds this for the duration of its fork loop.
func (h *Hub) BlockChild() { h.childMu.Lock() }

// UnblockChild ends the critical section started by BlockChild.
func (h *Hub) UnblockChild() { h.childMu.Unlock() }

// Block installs a process-wide ignore disposition for sig for the
// duration of a critical section. The Terminal Arbiter holds SIGTTOU
// blocked around the terminal handoff ioctl so the shell cannot suspend
// itself writing to a terminal it may no longer own.
func Block(sig os.Signal) { signal.Ignore(sig) }

// Unblock restores the default disposition installed by Block.
func Unblock(sig os.Signal) { signal.Reset(sig) }
