// Package plugin implements the shell's extension surface: a fixed set of
// hooks invoked at well-defined points in the REPL and Status Reactor,
// backed by dynamically loaded Go plugins.
package plugin

import (
	"fmt"
	"sort"
	"sync"
	"syscall"

	"github.com/google/uuid"

	"github.com/esh-shell/esh/internal/log"
	"github.com/esh-shell/esh/internal/shell/job"
	"github.com/esh-shell/esh/internal/shell/parse"
)

// Shell is the capability table handed to every plugin at load time. It
// lets a plugin inspect and reuse the shell's own job-control and REPL
// primitives without holding a reference back into the REPL Driver itself
// (the cyclic shell<->plugin relationship is modeled as two independent
// interface values rather than a shared mutable object graph).
type Shell interface {
	Jobs() []*job.Pipeline
	JobByJID(jid int) *job.Pipeline
	JobByPgrp(pgrp int) *job.Pipeline
	BuildPrompt() string
	ReadLine(prompt string) (string, error)
	ParseCommandLine(line string) (*parse.CommandLine, error)
}

// Module is the minimum a loaded plugin must provide: a load-order rank.
// Every other hook is optional and detected with a type assertion.
type Module interface {
	Rank() int
}

// InitHook runs once, when the plugin is loaded.
type InitHook interface {
	Init(shell Shell) bool
}

// PromptHook contributes one fragment to the assembled prompt.
type PromptHook interface {
	MakePrompt() string
}

// RawCmdlineHook may rewrite the raw line after it is read and before it is
// parsed.
type RawCmdlineHook interface {
	ProcessRawCmdline(line string) string
}

// PipelineHook may mutate the first parsed Pipeline before it is launched.
type PipelineHook interface {
	ProcessPipeline(p *parse.Pipeline)
}

// BuiltinHook runs before the built-in table. A true return shadows the
// built-in table and also suppresses the default launch path.
type BuiltinHook interface {
	ProcessBuiltin(cmd *parse.Command) bool
}

// ForkedHook observes a Pipeline immediately after every stage has forked
// successfully.
type ForkedHook interface {
	PipelineForked(p *job.Pipeline)
}

// StatusHook observes every reaped child-status event before the Status
// Reactor applies its own transition. A true return claims the event: the
// Reactor skips its own transition for that event only, and keeps
// reacting to any other pipelines in the same dispatch.
type StatusHook interface {
	CommandStatusChange(cmd *job.Command, status syscall.WaitStatus) bool
}

type entry struct {
	id     uuid.UUID
	module Module
}

// Registry holds every successfully loaded plugin, in rank order.
type Registry struct {
	mu      sync.Mutex
	entries []entry
	logger  *log.Logger
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{logger: log.New("plugin")}
}

// Register adds an already-constructed Module to the Registry and, if it
// implements InitHook, runs Init. A plugin whose Init fails is not added.
// Register keeps the Registry sorted by rank, ties broken by load order.
func (r *Registry) Register(m Module, shell Shell) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if hook, ok := m.(InitHook); ok {
		if !hook.Init(shell) {
			return fmt.Errorf("plugin: init failed")
		}
	}

	id := uuid.New()
	r.entries = append(r.entries, entry{id: id, module: m})
	sort.SliceStable(r.entries, func(i, j int) bool {
		return r.entries[i].module.Rank() < r.entries[j].module.Rank()
	})
	r.logger.Infof("registered plugin; id: %s, rank: %d", id, m.Rank())
	return nil
}

// Len reports how many plugins are currently registered.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// BuildPrompt concatenates every PromptHook fragment in rank order. If no
// plugin contributes, the caller should fall back to the default prompt.
func (r *Registry) BuildPrompt() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var prompt string
	contributed := false
	for _, e := range r.entries {
		if hook, ok := e.module.(PromptHook); ok {
			prompt += hook.MakePrompt()
			contributed = true
		}
	}
	return prompt, contributed
}

// ProcessRawCmdline runs every RawCmdlineHook in rank order, threading the
// (possibly rewritten) line through each.
func (r *Registry) ProcessRawCmdline(line string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if hook, ok := e.module.(RawCmdlineHook); ok {
			line = hook.ProcessRawCmdline(line)
		}
	}
	return line
}

// ProcessPipeline runs every PipelineHook in rank order.
func (r *Registry) ProcessPipeline(p *parse.Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if hook, ok := e.module.(PipelineHook); ok {
			hook.ProcessPipeline(p)
		}
	}
}

// ProcessBuiltin gives every BuiltinHook a chance to claim cmd. The first
// plugin to return true shadows the shell's own built-in table.
func (r *Registry) ProcessBuiltin(cmd *parse.Command) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	claimed := false
	for _, e := range r.entries {
		if hook, ok := e.module.(BuiltinHook); ok {
			if hook.ProcessBuiltin(cmd) {
				claimed = true
			}
		}
	}
	return claimed
}

// PipelineForked runs every ForkedHook in rank order.
func (r *Registry) PipelineForked(p *job.Pipeline) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if hook, ok := e.module.(ForkedHook); ok {
			hook.PipelineForked(p)
		}
	}
}

// CommandStatusChange gives every StatusHook a chance to claim the event.
// It reports whether any plugin claimed it, so the Status Reactor can skip
// its own transition for this event while continuing to react to any
// other pipelines in the same dispatch.
func (r *Registry) CommandStatusChange(cmd *job.Command, status syscall.WaitStatus) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range r.entries {
		if hook, ok := e.module.(StatusHook); ok {
			if hook.CommandStatusChange(cmd, status) {
				return true
			}
		}
	}
	return false
}
