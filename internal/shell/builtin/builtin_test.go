package builtin

import (
	"bytes"
	"errors"
	"os/exec"
	"syscall"
	"testing"

	"github.com/esh-shell/esh/internal/shell/job"
	"github.com/esh-shell/esh/internal/shell/parse"
	"github.com/esh-shell/esh/internal/validator"
)

type fgRecorder struct {
	gave      []int
	waited    []*job.Pipeline
	reclaimed int
}

func (f *fgRecorder) GiveTerminalTo(pgrp int) error { f.gave = append(f.gave, pgrp); return nil }

func (f *fgRecorder) WaitForeground(p *job.Pipeline) {
	f.waited = append(f.waited, p)
}

func (f *fgRecorder) ReclaimTerminal() error { f.reclaimed++; return nil }

func command(argv ...string) *parse.Command {
	return &parse.Command{Argv: argv}
}

// startSleep launches a real "sleep 60" in its own process group and tracks
// it in table, so built-ins that signal a pgrp have a live target.
func startSleep(t *testing.T, table *job.Table) *job.Pipeline {
	t.Helper()

	cmd := exec.Command("sleep", "60")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start sleep: %v", err)
	}
	pid := cmd.Process.Pid

	p := job.NewPipeline(&parse.Pipeline{
		Commands: []*parse.Command{{Argv: []string{"sleep", "60"}}},
	})
	p.Commands[0].Pid = pid
	p.Pgrp = pid
	table.Insert(p)

	t.Cleanup(func() {
		syscall.Kill(-pid, syscall.SIGKILL)
		var ws syscall.WaitStatus
		for {
			reaped, err := syscall.Wait4(pid, &ws, 0, nil)
			if reaped <= 0 || err != nil || ws.Exited() || ws.Signaled() {
				return
			}
		}
	})
	return p
}

func TestIsBuiltin(t *testing.T) {
	for _, verb := range []string{"exit", "jobs", "fg", "bg", "kill", "stop"} {
		if !IsBuiltin(verb) {
			t.Fatalf("expected %q to be a built-in", verb)
		}
	}
	if IsBuiltin("sleep") {
		t.Fatal("expected \"sleep\" to not be a built-in")
	}
}

func TestDispatchExit(t *testing.T) {
	var code = -1
	d := New(job.New(), &fgRecorder{}, &bytes.Buffer{}, func(c int) { code = c })

	if err := d.Dispatch(command("exit")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != 0 {
		t.Fatalf("unexpected exit code; actual: %d, expected: 0", code)
	}
}

func TestDispatchJobs(t *testing.T) {
	table := job.New()
	var out bytes.Buffer
	d := New(table, &fgRecorder{}, &out, nil)

	first := job.NewPipeline(&parse.Pipeline{
		Commands: []*parse.Command{{Argv: []string{"sleep", "10"}}},
	})
	second := job.NewPipeline(&parse.Pipeline{
		Commands: []*parse.Command{{Argv: []string{"sleep", "100"}}},
	})
	table.Insert(first)
	table.Insert(second)
	first.SetStatus(job.Background)
	second.SetStatus(job.Stopped)

	if err := d.Dispatch(command("jobs")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "[1]   Running         (sleep 10)\n[2]   Stopped         (sleep 100)\n"
	if actual := out.String(); actual != expected {
		t.Fatalf("unexpected listing; actual: %q, expected: %q", actual, expected)
	}
}

func TestDispatchMissingJob(t *testing.T) {
	var out bytes.Buffer
	d := New(job.New(), &fgRecorder{}, &out, nil)

	if err := d.Dispatch(command("kill", "%99")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "No job with job id 99 found\n"
	if actual := out.String(); actual != expected {
		t.Fatalf("unexpected output; actual: %q, expected: %q", actual, expected)
	}
}

func TestDispatchInvalidJobID(t *testing.T) {
	d := New(job.New(), &fgRecorder{}, &bytes.Buffer{}, nil)

	err := d.Dispatch(command("fg", "nope"))
	if !errors.Is(err, validator.ErrInvalidInput) {
		t.Fatalf("expected invalid input error; actual: %v", err)
	}
}

func TestDispatchFg(t *testing.T) {
	table := job.New()
	var out bytes.Buffer
	rec := &fgRecorder{}
	d := New(table, rec, &out, nil)

	p := startSleep(t, table)
	p.SetStatus(job.Stopped)

	// Both the "%N" and bare "N" jid forms select the same job.
	for _, arg := range []string{"%1", "1"} {
		out.Reset()
		if err := d.Dispatch(command("fg", arg)); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		expected := "(sleep 60)\n"
		if actual := out.String(); actual != expected {
			t.Fatalf("unexpected output; actual: %q, expected: %q", actual, expected)
		}
	}

	if p.Status() != job.Foreground {
		t.Fatalf("unexpected status; actual: %v, expected: %v", p.Status(), job.Foreground)
	}
	if len(rec.gave) != 2 || rec.gave[0] != p.Pgrp {
		t.Fatalf("unexpected terminal handoffs; actual: %v", rec.gave)
	}
	if len(rec.waited) != 2 || rec.reclaimed != 2 {
		t.Fatalf("expected wait and reclaim per fg; waited: %d, reclaimed: %d", len(rec.waited), rec.reclaimed)
	}
}

func TestDispatchFgDefaultsToMostRecent(t *testing.T) {
	table := job.New()
	rec := &fgRecorder{}
	d := New(table, rec, &bytes.Buffer{}, nil)

	startSleep(t, table)
	p := startSleep(t, table)

	if err := d.Dispatch(command("fg")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.waited) != 1 || rec.waited[0] != p {
		t.Fatalf("expected fg to select the most recent job; actual: %v", rec.waited)
	}
}

func TestDispatchKill(t *testing.T) {
	table := job.New()
	d := New(table, &fgRecorder{}, &bytes.Buffer{}, nil)

	p := startSleep(t, table)

	if err := d.Dispatch(command("kill", "%1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ws syscall.WaitStatus
	pid, err := syscall.Wait4(p.Commands[0].Pid, &ws, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pid != p.Commands[0].Pid {
		t.Fatalf("unexpected pid; actual: %d, expected: %d", pid, p.Commands[0].Pid)
	}
	if !ws.Signaled() || ws.Signal() != syscall.SIGTERM {
		t.Fatalf("expected SIGTERM termination; actual: %v", ws)
	}
}

func TestDispatchStopThenBg(t *testing.T) {
	table := job.New()
	var out bytes.Buffer
	d := New(table, &fgRecorder{}, &out, nil)

	p := startSleep(t, table)
	pid := p.Commands[0].Pid

	if err := d.Dispatch(command("stop", "%1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var ws syscall.WaitStatus
	if _, err := syscall.Wait4(pid, &ws, syscall.WUNTRACED, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ws.Stopped() {
		t.Fatalf("expected stopped status; actual: %v", ws)
	}
	p.SetStatus(job.Stopped)

	if err := d.Dispatch(command("bg", "%1")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "[1] (sleep 60)\n"
	if actual := out.String(); actual != expected {
		t.Fatalf("unexpected output; actual: %q, expected: %q", actual, expected)
	}
	if p.Status() != job.Background {
		t.Fatalf("unexpected status; actual: %v, expected: %v", p.Status(), job.Background)
	}

	if _, err := syscall.Wait4(pid, &ws, syscall.WCONTINUED, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ws.Continued() {
		t.Fatalf("expected continued status; actual: %v", ws)
	}
}
