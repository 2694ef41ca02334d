// Package builtin implements the Built-in Dispatcher: it recognizes the
// shell's verbs (exit, jobs, fg, bg, kill, stop) and invokes job-control
// operations against the Job Table.
package builtin

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"syscall"

	ierrors "github.com/esh-shell/esh/internal/errors"
	"github.com/esh-shell/esh/internal/shell/job"
	"github.com/esh-shell/esh/internal/shell/parse"
	"github.com/esh-shell/esh/internal/validator"
)

// Foreground is the subset of the REPL Driver the "fg" verb needs:
// handing the terminal to a pgrp and waiting for it synchronously.
type Foreground interface {
	GiveTerminalTo(pgrp int) error
	ReclaimTerminal() error
	WaitForeground(p *job.Pipeline)
}

// Dispatcher recognizes the shell's built-in verbs.
type Dispatcher struct {
	table *job.Table
	fg    Foreground
	out   io.Writer
	exit  func(code int)
}

// New creates a Dispatcher over table. exit is called by the "exit" verb;
// tests may substitute a non-terminating stub.
func New(table *job.Table, fg Foreground, out io.Writer, exit func(code int)) *Dispatcher {
	return &Dispatcher{table: table, fg: fg, out: out, exit: exit}
}

// IsBuiltin reports whether name is one of the Dispatcher's recognized
// verbs.
func IsBuiltin(name string) bool {
	switch name {
	case "exit", "jobs", "fg", "bg", "kill", "stop":
		return true
	}
	return false
}

// Dispatch runs the built-in named by cmd.Argv[0]. It is the caller's
// responsibility to have already checked IsBuiltin.
func (d *Dispatcher) Dispatch(cmd *parse.Command) error {
	verb := cmd.Argv[0]
	arg := ""
	if len(cmd.Argv) > 1 {
		arg = cmd.Argv[1]
	}

	switch verb {
	case "exit":
		d.exit(0)
		return nil
	case "jobs":
		return d.jobs()
	case "fg":
		return d.fg_(arg)
	case "bg":
		return d.bg(arg)
	case "kill":
		return d.signal(arg, syscall.SIGTERM)
	case "stop":
		return d.signal(arg, syscall.SIGSTOP)
	default:
		return fmt.Errorf("builtin: unrecognized verb %q", verb)
	}
}

func (d *Dispatcher) jobs() error {
	for _, p := range d.table.All() {
		io.WriteString(d.out, p.StatusLine())
	}
	return nil
}

func (d *Dispatcher) fg_(arg string) error {
	p, err := d.resolve(arg)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}

	// Status is fixed before SIGCONT so the resulting continue event sees a
	// non-stopped pipeline and leaves the choice alone.
	p.SetStatus(job.Foreground)
	if err := syscall.Kill(-p.Pgrp, syscall.SIGCONT); err != nil {
		return fmt.Errorf("builtin: fg: signal pgrp %d: %w", p.Pgrp, err)
	}

	io.WriteString(d.out, job.ForegroundLine(p.Text()))

	if err := d.fg.GiveTerminalTo(p.Pgrp); err != nil {
		return ierrors.Wrap(err)
	}
	d.fg.WaitForeground(p)
	return ierrors.Wrap(d.fg.ReclaimTerminal())
}

func (d *Dispatcher) bg(arg string) error {
	p, err := d.resolve(arg)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}

	p.SetStatus(job.Background)
	if err := syscall.Kill(-p.Pgrp, syscall.SIGCONT); err != nil {
		return fmt.Errorf("builtin: bg: signal pgrp %d: %w", p.Pgrp, err)
	}
	io.WriteString(d.out, job.BackgroundResumeLine(p.JID, p.Text()))
	return nil
}

func (d *Dispatcher) signal(arg string, sig syscall.Signal) error {
	p, err := d.resolve(arg)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	if err := syscall.Kill(-p.Pgrp, sig); err != nil {
		return fmt.Errorf("builtin: signal pgrp %d: %w", p.Pgrp, err)
	}
	return nil
}

// resolve looks up the Pipeline named by arg, which is either empty (most
// recently inserted Pipeline), a bare jid, or a "%N"-form jid. It reports a
// nil Pipeline (with no error) when nothing matches, after printing the
// missing-job diagnostic, so callers can simply return.
func (d *Dispatcher) resolve(arg string) (*job.Pipeline, error) {
	if arg == "" {
		p := d.table.MostRecent()
		if p == nil {
			io.WriteString(d.out, job.NoSuchJobLine(0))
		}
		return p, nil
	}

	jidStr := strings.TrimPrefix(arg, "%")
	jid, convErr := strconv.Atoi(jidStr)

	v := validator.New()
	v.Assert(convErr == nil, validator.Format(fmt.Sprintf("job id %q is not a number", arg)))
	v.Assert(convErr != nil || jid > 0, validator.Format(fmt.Sprintf("job id %d is not positive", jid)))
	if err := v.Err(); err != nil {
		return nil, err
	}

	p := d.table.FindByJID(jid)
	if p == nil {
		io.WriteString(d.out, job.NoSuchJobLine(jid))
		return nil, nil
	}
	return p, nil
}
