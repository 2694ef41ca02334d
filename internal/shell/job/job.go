// Package job provides the live Job Table: the ordered collection of
// running pipelines the shell's built-ins and status reactor operate on.
package job

import (
	"sync"

	"github.com/esh-shell/esh/internal/shell/parse"
	"github.com/esh-shell/esh/internal/shell/tty"
)

// Status is a Pipeline's place in the job-control state machine.
type Status int

const (
	// Foreground indicates the Pipeline currently owns the controlling
	// terminal and the shell is waiting on it.
	Foreground Status = iota
	// Background indicates the Pipeline is running without terminal
	// ownership.
	Background
	// Stopped indicates a process in the Pipeline was reported stopped by a
	// stop signal.
	Stopped
	// Done is a terminal status: it marks a Pipeline that has exited or been
	// signalled and has already been removed from the Table.
	Done
)

// String renders a Status the way "jobs" and status-change lines do.
func (s Status) String() string {
	switch s {
	case Foreground, Background:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// Command is a single forked process belonging to a Pipeline.
type Command struct {
	*parse.Command
	// Pid is zero until the Pipeline Launcher forks this Command.
	Pid int
}

// Pipeline is a live, running pipeline: one or more Commands sharing a
// process group, tracked in the Job Table from the moment the last fork
// succeeds until its last Command exits or any of its Commands is
// terminated by a signal.
type Pipeline struct {
	// JID is assigned by Table.Insert and is unique among live Pipelines.
	JID int
	// Pgrp is the pid of the first successfully forked Command.
	Pgrp int

	Commands []*Command
	// BgRequested mirrors the parsed "&" suffix, and is promoted to true the
	// first time a member of this Pipeline is stopped.
	BgRequested bool

	mu       sync.Mutex
	status   Status
	savedTTY *tty.State
}

// NewPipeline builds a Pipeline from a parsed pipeline, not yet assigned a
// JID or Pgrp; the Pipeline Launcher completes both before insertion.
func NewPipeline(p *parse.Pipeline) *Pipeline {
	cmds := make([]*Command, len(p.Commands))
	for i, c := range p.Commands {
		cmds[i] = &Command{Command: c}
	}
	return &Pipeline{
		Commands:    cmds,
		BgRequested: p.Background,
	}
}

// Text renders the pipeline the way status lines display it, e.g.
// "sleep 10|tr a-z A-Z".
func (p *Pipeline) Text() string {
	parts := make([]string, len(p.Commands))
	for i, c := range p.Commands {
		parts[i] = c.Text()
	}
	return joinPipe(parts)
}

func joinPipe(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "|"
		}
		out += p
	}
	return out
}

// Status returns the Pipeline's current status.
func (p *Pipeline) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// SetStatus updates the Pipeline's status.
func (p *Pipeline) SetStatus(s Status) {
	p.mu.Lock()
	p.status = s
	p.mu.Unlock()
}

// SavedTTYState returns the terminal attributes snapshotted when the
// Pipeline last relinquished the terminal while stopped, or nil if none
// were saved.
func (p *Pipeline) SavedTTYState() *tty.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.savedTTY
}

// SetSavedTTYState records the terminal attributes to restore the next
// time this Pipeline is resumed.
func (p *Pipeline) SetSavedTTYState(s *tty.State) {
	p.mu.Lock()
	p.savedTTY = s
	p.mu.Unlock()
}

// LastCommand returns the final Command in the Pipeline.
func (p *Pipeline) LastCommand() *Command {
	return p.Commands[len(p.Commands)-1]
}

// HasPid reports whether any Command in the Pipeline was forked with pid.
func (p *Pipeline) HasPid(pid int) bool {
	for _, c := range p.Commands {
		if c.Pid == pid {
			return true
		}
	}
	return false
}

// IsLastPid reports whether pid belongs to the Pipeline's final Command.
func (p *Pipeline) IsLastPid(pid int) bool {
	return p.LastCommand().Pid == pid
}

// Table is the insertion-ordered collection of live Pipelines. Table is
// safe for concurrent use: the REPL goroutine (launcher and built-ins) and
// the child-status dispatch goroutine (Status Reactor) both use it.
type Table struct {
	mu        sync.Mutex
	pipelines []*Pipeline
	counter   int
}

// New creates an empty Table.
func New() *Table {
	return &Table{}
}

// Insert assigns the next JID to p and appends it to the Table.
func (t *Table) Insert(p *Pipeline) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.counter++
	p.JID = t.counter
	t.pipelines = append(t.pipelines, p)
}

// Remove deletes p from the Table. If the Table becomes empty, the JID
// counter resets to zero so the next launch starts again at 1.
func (t *Table) Remove(p *Pipeline) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, candidate := range t.pipelines {
		if candidate == p {
			t.pipelines = append(t.pipelines[:i], t.pipelines[i+1:]...)
			break
		}
	}
	if len(t.pipelines) == 0 {
		t.counter = 0
	}
}

// FindByJID returns the live Pipeline with the given JID, or nil.
func (t *Table) FindByJID(jid int) *Pipeline {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pipelines {
		if p.JID == jid {
			return p
		}
	}
	return nil
}

// FindByPgrp returns the live Pipeline with the given process group, or nil.
func (t *Table) FindByPgrp(pgrp int) *Pipeline {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.pipelines {
		if p.Pgrp == pgrp {
			return p
		}
	}
	return nil
}

// MostRecent returns the most recently inserted live Pipeline, or nil if the
// Table is empty.
func (t *Table) MostRecent() *Pipeline {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.pipelines) == 0 {
		return nil
	}
	return t.pipelines[len(t.pipelines)-1]
}

// All returns every live Pipeline in insertion order. The returned slice is
// a copy; mutating it does not affect the Table.
func (t *Table) All() []*Pipeline {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Pipeline, len(t.pipelines))
	copy(out, t.pipelines)
	return out
}

// IsEmpty reports whether the Table currently holds no live Pipelines.
func (t *Table) IsEmpty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pipelines) == 0
}
