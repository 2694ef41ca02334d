// Package repl implements the REPL Driver: it ties together the parser,
// Job Table, Pipeline Launcher, Status Reactor, Built-in Dispatcher and
// Plugin Registry into the shell's single read-eval-print loop.
package repl

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chzyer/readline"

	"github.com/esh-shell/esh/internal/shell/builtin"
	"github.com/esh-shell/esh/internal/shell/job"
	"github.com/esh-shell/esh/internal/shell/launch"
	"github.com/esh-shell/esh/internal/shell/parse"
	"github.com/esh-shell/esh/internal/shell/plugin"
	"github.com/esh-shell/esh/internal/shell/reactor"
	"github.com/esh-shell/esh/internal/shell/signals"
	"github.com/esh-shell/esh/internal/shell/tty"
)

const defaultPrompt = "esh> "

// Shell drives the read-eval-print loop and also implements
// plugin.Shell and builtin.Foreground, the two narrow collaborator
// interfaces its dependents need back.
type Shell struct {
	arbiter  *tty.Arbiter
	ttyInit  *tty.State
	hub      *signals.Hub
	table    *job.Table
	launch   *launch.Launcher
	reactor  *reactor.Reactor
	plugins  *plugin.Registry
	dispatch *builtin.Dispatcher

	rl *readline.Instance

	out io.Writer
}

// New wires every collaborator together into a runnable Shell.
func New(plugins *plugin.Registry) (*Shell, error) {
	arbiter, initState, err := tty.Init()
	if err != nil {
		return nil, fmt.Errorf("repl: tty init: %w", err)
	}

	hub := signals.New()
	table := job.New()
	out := os.Stdout

	s := &Shell{
		arbiter: arbiter,
		ttyInit: initState,
		hub:     hub,
		table:   table,
		launch:  launch.New(hub, table, plugins),
		plugins: plugins,
		out:     out,
	}
	s.reactor = reactor.New(table, plugins, out)
	s.dispatch = builtin.New(table, s, out, os.Exit)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      defaultPrompt,
		HistoryFile: historyFile(),
	})
	if err != nil {
		return nil, fmt.Errorf("repl: readline: %w", err)
	}
	s.rl = rl

	go s.dispatchEvents()
	go s.drainCtrlZ()

	return s, nil
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.esh_history"
}

// Close releases the REPL's own resources (not running jobs).
func (s *Shell) Close() error {
	return s.rl.Close()
}

// dispatchEvents is the single consumer of the Signal Hub's child-status
// events: every reaped transition, foreground or background, funnels
// through here into the Reactor. The foreground wait blocks on the
// Reactor's wake pulses rather than issuing wait syscalls of its own, so
// only one code path ever asks the kernel about children.
func (s *Shell) dispatchEvents() {
	for ev := range s.hub.Events() {
		s.reactor.Handle(ev.Pid, ev.Status)
	}
}

// ctrlZErase is the backspace-space-backspace sequence that erases the
// terminal's own "^Z" echo when SIGTSTP is delivered to the shell itself
// rather than to a foreground pipeline. It is purely cosmetic and never
// touches job state. Whether there is a "^Z" to erase depends on the
// terminal's echo mode; where the terminal does not echo it, the sequence
// is redundant.
const ctrlZErase = "\b\b  \b\b"

func (s *Shell) drainCtrlZ() {
	for range s.hub.CtrlZ() {
		if s.arbiter.IsTerminal() {
			io.WriteString(s.out, ctrlZErase)
		}
	}
}

// Run executes the REPL until end-of-file or an "exit" built-in.
func (s *Shell) Run() error {
	for {
		prompt := s.buildPrompt()
		s.rl.SetPrompt(prompt)

		line, err := s.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		line = s.plugins.ProcessRawCmdline(line)

		cmdline, err := parse.Parse(line)
		if err != nil {
			fmt.Fprintf(s.out, "esh: %s\n", err)
			continue
		}
		if len(cmdline.Pipelines) == 0 {
			continue
		}

		// Only the first pipeline on the line is launched; a "cmd1; cmd2"
		// line's later pipelines are intentionally not executed.
		pp := cmdline.Pipelines[0]
		s.plugins.ProcessPipeline(pp)

		if err := s.runOne(pp); err != nil {
			fmt.Fprintf(s.out, "esh: %s\n", err)
		}
	}
}

func (s *Shell) runOne(pp *parse.Pipeline) error {
	first := pp.Commands[0]

	if s.plugins.ProcessBuiltin(first) {
		return nil
	}
	if builtin.IsBuiltin(first.Argv[0]) {
		return s.dispatch.Dispatch(first)
	}

	pipeline, err := s.launch.Launch(pp)
	if err != nil {
		return err
	}

	if pipeline.BgRequested {
		io.WriteString(s.out, job.LaunchLine(pipeline.JID, pipeline.LastCommand().Pid))
		return nil
	}

	if err := s.GiveTerminalTo(pipeline.Pgrp); err != nil {
		return err
	}
	s.WaitForeground(pipeline)
	return s.ReclaimTerminal()
}

// --- plugin.Shell ---

func (s *Shell) Jobs() []*job.Pipeline            { return s.table.All() }
func (s *Shell) JobByJID(jid int) *job.Pipeline   { return s.table.FindByJID(jid) }
func (s *Shell) JobByPgrp(pgrp int) *job.Pipeline { return s.table.FindByPgrp(pgrp) }

func (s *Shell) BuildPrompt() string { return s.buildPrompt() }

func (s *Shell) ReadLine(prompt string) (string, error) {
	s.rl.SetPrompt(prompt)
	return s.rl.Readline()
}

func (s *Shell) ParseCommandLine(line string) (*parse.CommandLine, error) {
	return parse.Parse(line)
}

func (s *Shell) buildPrompt() string {
	if !s.arbiter.IsTerminal() {
		return ""
	}
	if prompt, ok := s.plugins.BuildPrompt(); ok {
		return prompt
	}
	return defaultPrompt
}

// --- builtin.Foreground ---

// GiveTerminalTo hands the controlling terminal to pgrp, restoring any
// terminal attributes saved the last time that Pipeline was stopped.
func (s *Shell) GiveTerminalTo(pgrp int) error {
	var restore *tty.State
	if p := s.table.FindByPgrp(pgrp); p != nil {
		restore = p.SavedTTYState()
	}
	if err := s.arbiter.GiveTerminalTo(pgrp, restore); err != nil {
		// A pipeline can finish and be fully reaped between the decision to
		// foreground it and the handoff ioctl; its pgrp is then gone and the
		// terminal simply stays with the shell. Handoff failure for a
		// pipeline still in the table is real.
		if s.table.FindByPgrp(pgrp) == nil {
			return nil
		}
		return err
	}
	return nil
}

// ReclaimTerminal returns the controlling terminal to the shell's own
// process group, restoring the shell's own terminal attributes.
func (s *Shell) ReclaimTerminal() error {
	return s.arbiter.GiveTerminalTo(os.Getpid(), s.ttyInit)
}

// WaitForeground blocks until p leaves the foreground, then snapshots the
// terminal attributes if p was stopped so a later resume can restore them.
func (s *Shell) WaitForeground(p *job.Pipeline) {
	launch.WaitForeground(p, s.reactor)
	if p.Status() == job.Stopped {
		snap, err := s.arbiter.Snapshot()
		if err == nil {
			p.SetSavedTTYState(snap)
		}
	}
}
