// Package launch implements the Pipeline Launcher: it turns a parsed
// Pipeline into a running process group, wiring inter-stage pipes and I/O
// redirection and converging every stage onto a single process group id.
package launch

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/esh-shell/esh/internal/shell/job"
	"github.com/esh-shell/esh/internal/shell/parse"
)

// Waiter is the subset of *reactor.Reactor the foreground wait needs: the
// wake pulses emitted after every handled child-status event.
type Waiter interface {
	Wake() <-chan struct{}
}

// ForkedHook observes a Pipeline once every stage has forked, before the
// launch critical section ends. A nil ForkedHook is allowed.
type ForkedHook interface {
	PipelineForked(p *job.Pipeline)
}

// redirFileMode is the permission bits used when a command's output
// redirection creates a file. The file may hold arbitrary command output,
// so it is created user-private rather than world-writable.
const redirFileMode = 0600

// Hub is the subset of *signals.Hub the Launcher needs: a block/unblock
// bracket around the fork loop.
type Hub interface {
	BlockChild()
	UnblockChild()
}

// Launcher forks every stage of a Pipeline and converges them onto a
// shared process group.
type Launcher struct {
	hub    Hub
	table  *job.Table
	forked ForkedHook
}

// New creates a Launcher that brackets its fork loop against hub and
// inserts each successfully launched Pipeline into table before the
// bracket ends, so the asynchronous reaper can never observe a pid the
// Table does not yet know about. forked may be nil.
func New(hub Hub, table *job.Table, forked ForkedHook) *Launcher {
	return &Launcher{hub: hub, table: table, forked: forked}
}

// Launch starts every stage of pp as a single OS process group, assigns it
// a JID, and inserts it into the Job Table. If any stage fails to start,
// Launch kills whichever stages already started and returns an error; this
// aborts only this one pipeline, not the shell itself.
func (l *Launcher) Launch(pp *parse.Pipeline) (*job.Pipeline, error) {
	pipeline := job.NewPipeline(pp)

	cmds := make([]*exec.Cmd, len(pipeline.Commands))
	var pipeReaders, pipeWriters []*os.File
	var redirFiles []*os.File

	cleanup := func() {
		for _, f := range pipeReaders {
			f.Close()
		}
		for _, f := range pipeWriters {
			f.Close()
		}
		for _, f := range redirFiles {
			f.Close()
		}
	}

	for i, c := range pipeline.Commands {
		if len(c.Argv) == 0 {
			cleanup()
			return nil, fmt.Errorf("launch: empty command at stage %d", i)
		}

		ec := exec.Command(c.Argv[0], c.Argv[1:]...)

		switch {
		case i == 0 && c.InputFile != "":
			f, err := os.Open(c.InputFile)
			if err != nil {
				cleanup()
				return nil, fmt.Errorf("launch: open input %q: %w", c.InputFile, err)
			}
			redirFiles = append(redirFiles, f)
			ec.Stdin = f
		case i == 0:
			ec.Stdin = os.Stdin
		default:
			ec.Stdin = pipeReaders[len(pipeReaders)-1]
		}

		last := i == len(pipeline.Commands)-1
		switch {
		case last && c.OutputFile != "":
			flags := os.O_WRONLY | os.O_CREATE
			if c.AppendOut {
				flags |= os.O_APPEND
			} else {
				flags |= os.O_TRUNC
			}
			f, err := os.OpenFile(c.OutputFile, flags, redirFileMode)
			if err != nil {
				cleanup()
				return nil, fmt.Errorf("launch: open output %q: %w", c.OutputFile, err)
			}
			redirFiles = append(redirFiles, f)
			ec.Stdout = f
		case last:
			ec.Stdout = os.Stdout
		default:
			r, w, err := os.Pipe()
			if err != nil {
				cleanup()
				return nil, fmt.Errorf("launch: pipe: %w", err)
			}
			pipeReaders = append(pipeReaders, r)
			pipeWriters = append(pipeWriters, w)
			ec.Stdout = w
		}

		ec.Stderr = os.Stderr
		cmds[i] = ec
	}

	// The fork loop and pgrp convergence below run as a critical section
	// against the asynchronous SIGCHLD reaper: a child that forks and exits
	// before its pid is recorded here must not be reaped out from under an
	// as-yet-unpopulated Pipeline.
	l.hub.BlockChild()
	defer l.hub.UnblockChild()

	for i, ec := range cmds {
		pgid := 0
		if i > 0 {
			pgid = pipeline.Pgrp
		}
		ec.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Pgid: pgid}

		if err := ec.Start(); err != nil {
			killStarted(cmds[:i])
			cleanup()
			return nil, errors.Wrapf(err, "launch: start %q", pipeline.Commands[i].Argv[0])
		}

		pid := ec.Process.Pid
		pipeline.Commands[i].Pid = pid
		if i == 0 {
			pipeline.Pgrp = pid
		} else {
			// Setpgid races benignly with the child's own Setpgid(0, pgrp) call:
			// whichever runs first wins, and both set the same value.
			_ = unix.Setpgid(pid, pipeline.Pgrp)
		}
	}

	cleanup()

	if l.forked != nil {
		l.forked.PipelineForked(pipeline)
	}

	// The initial status must be fixed before the critical section ends:
	// once the reaper can see these pids, a fast-exiting stage may be
	// transitioned immediately, and a later status write would clobber it.
	if pipeline.BgRequested {
		pipeline.SetStatus(job.Background)
	} else {
		pipeline.SetStatus(job.Foreground)
	}
	l.table.Insert(pipeline)

	return pipeline, nil
}

// WaitForeground blocks until p leaves the foreground: its last stage
// exited or one of its stages was killed by a signal (the Status Reactor
// removed p and marked it Done), or a stop signal took the pipeline out of
// the foreground. Earlier stages that are still running when the last
// stage exits are not waited for. All
// reaping flows through the Signal Hub's single drain loop; this wait
// only observes the resulting transitions via w's wake pulses, so it can
// never race a second waiter for the kernel's view of a child.
func WaitForeground(p *job.Pipeline, w Waiter) {
	for p.Status() == job.Foreground {
		<-w.Wake()
	}
}

func killStarted(cmds []*exec.Cmd) {
	for _, ec := range cmds {
		if ec.Process != nil {
			ec.Process.Kill()
		}
	}
}
