// Package reactor implements the Status Reactor: it applies a single
// reaped child-status event to the Job Table. Outside the Reactor, a
// Pipeline's Status is set only by the launcher (initial status) and by
// the fg and bg built-ins.
package reactor

import (
	"io"
	"syscall"

	"github.com/esh-shell/esh/internal/shell/job"
)

// PluginHook is the subset of plugin.Registry the Reactor consults before
// applying its own transition.
type PluginHook interface {
	CommandStatusChange(cmd *job.Command, status syscall.WaitStatus) bool
}

// Reactor applies child-status transitions to a job.Table.
type Reactor struct {
	table   *job.Table
	plugins PluginHook
	out     io.Writer

	// wake is pulsed after every handled event so a foreground waiter can
	// re-inspect its pipeline's status without issuing wait syscalls of its
	// own. Buffered and coalescing: a pulse the waiter has not yet consumed
	// covers every event handled since.
	wake chan struct{}
}

// New creates a Reactor over table. out receives the status lines printed
// when a background pipeline changes state; plugins may be nil.
func New(table *job.Table, plugins PluginHook, out io.Writer) *Reactor {
	return &Reactor{
		table:   table,
		plugins: plugins,
		out:     out,
		wake:    make(chan struct{}, 1),
	}
}

// Wake returns the channel pulsed after every handled child-status event.
// The foreground wait blocks on it between status checks.
func (r *Reactor) Wake() <-chan struct{} { return r.wake }

// Handle applies one (pid, status) event, as delivered by the REPL's
// dispatch goroutine from the Signal Hub, to whichever Pipeline in the
// Table contains pid. It reports the Pipeline affected, or nil if pid
// belongs to no tracked Pipeline (already reaped, or a grandchild the
// shell never registered).
func (r *Reactor) Handle(pid int, status syscall.WaitStatus) *job.Pipeline {
	pipeline, cmd := r.find(pid)
	if pipeline == nil {
		return nil
	}
	defer r.pulse()

	// A plugin may want to intercept status changes for its own bookkeeping
	// (a job monitor, a notification module). A hook claiming the event
	// skips only this Reactor's own transition for this one event; any
	// other pipeline reported by a later Handle call is unaffected.
	if r.plugins != nil && r.plugins.CommandStatusChange(cmd, status) {
		return pipeline
	}

	switch {
	case status.Stopped():
		r.onStopped(pipeline, status.StopSignal())
	case status.Signaled():
		r.onKilled(pipeline)
	case status.Exited():
		if pipeline.IsLastPid(pid) {
			r.onExited(pipeline)
		}
	case status.Continued():
		// Only a still-stopped pipeline transitions here (an external
		// SIGCONT). fg and bg set the status themselves before signalling,
		// and that choice must stand when their continue event arrives —
		// flipping an fg-resumed pipeline to Background would wake its
		// foreground waiter while the job still owns the terminal.
		if pipeline.IsLastPid(pid) && pipeline.Status() == job.Stopped {
			if pipeline.BgRequested {
				pipeline.SetStatus(job.Background)
			} else {
				pipeline.SetStatus(job.Foreground)
			}
		}
	}

	return pipeline
}

func (r *Reactor) pulse() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *Reactor) find(pid int) (*job.Pipeline, *job.Command) {
	for _, p := range r.table.All() {
		if p.HasPid(pid) {
			for _, c := range p.Commands {
				if c.Pid == pid {
					return p, c
				}
			}
		}
	}
	return nil, nil
}

// onStopped handles any command in a Pipeline receiving a stop signal. A
// stop promotes the whole Pipeline to bg_requested, since a subsequent
// completion should print a "Done" line even if the Pipeline is later
// resumed in the foreground. The status line itself is only printed for
// the interactive keyboard-stop signal; other stop signals (SIGSTOP sent
// explicitly) are silent.
func (r *Reactor) onStopped(p *job.Pipeline, sig syscall.Signal) {
	p.SetStatus(job.Stopped)
	p.BgRequested = true
	if sig == syscall.SIGTSTP && r.out != nil {
		io.WriteString(r.out, p.StatusLine())
	}
}

// onKilled handles any command in a Pipeline terminating on a signal: the
// Pipeline is removed silently, whether it was foreground or background.
// "kill %1" produces no status line, only the next prompt.
func (r *Reactor) onKilled(p *job.Pipeline) {
	r.table.Remove(p)
	p.SetStatus(job.Done)
}

// onExited handles a pipeline's last command exiting normally. A
// background pipeline's removal is reported with a "Done" line, a
// foreground pipeline's is silent since the foreground wait already knows
// it has finished. Removal precedes the status flip so a waiter woken by
// the Done transition never observes the Pipeline still in the Table.
func (r *Reactor) onExited(p *job.Pipeline) {
	wasBackground := p.Status() == job.Background || p.BgRequested
	r.table.Remove(p)
	p.SetStatus(job.Done)
	if wasBackground && r.out != nil {
		io.WriteString(r.out, p.StatusLine())
	}
}
