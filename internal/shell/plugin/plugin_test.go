package plugin

import (
	"syscall"
	"testing"

	"github.com/esh-shell/esh/internal/shell/job"
	"github.com/esh-shell/esh/internal/shell/parse"
)

type baseModule struct {
	rank int
}

func (m baseModule) Rank() int { return m.rank }

type promptModule struct {
	baseModule
	fragment string
}

func (m promptModule) MakePrompt() string { return m.fragment }

type initModule struct {
	baseModule
	ok     bool
	called *bool
}

func (m initModule) Init(shell Shell) bool {
	*m.called = true
	return m.ok
}

type rewriteModule struct {
	baseModule
	suffix string
}

func (m rewriteModule) ProcessRawCmdline(line string) string { return line + m.suffix }

type builtinModule struct {
	baseModule
	claim bool
}

func (m builtinModule) ProcessBuiltin(cmd *parse.Command) bool { return m.claim }

type statusModule struct {
	baseModule
	claim bool
	calls *int
}

func (m statusModule) CommandStatusChange(cmd *job.Command, status syscall.WaitStatus) bool {
	*m.calls++
	return m.claim
}

func TestRegisterRunsInit(t *testing.T) {
	r := NewRegistry()

	called := false
	if err := r.Register(initModule{baseModule{1}, true, &called}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("expected Init to run at registration")
	}
	if r.Len() != 1 {
		t.Fatalf("unexpected registry length; actual: %d, expected: 1", r.Len())
	}
}

func TestRegisterRejectsFailedInit(t *testing.T) {
	r := NewRegistry()

	called := false
	if err := r.Register(initModule{baseModule{1}, false, &called}, nil); err == nil {
		t.Fatal("expected registration to fail when Init fails")
	}
	if r.Len() != 0 {
		t.Fatalf("failed plugin must not be registered; length: %d", r.Len())
	}
}

func TestBuildPromptConcatenatesByRank(t *testing.T) {
	r := NewRegistry()

	// Registered out of rank order; fragments must still assemble by rank.
	if err := r.Register(promptModule{baseModule{2}, "world> "}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(promptModule{baseModule{1}, "hello "}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	prompt, contributed := r.BuildPrompt()
	if !contributed {
		t.Fatal("expected prompt contribution")
	}
	if prompt != "hello world> " {
		t.Fatalf("unexpected prompt; actual: %q, expected: %q", prompt, "hello world> ")
	}
}

func TestBuildPromptWithoutContribution(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(baseModule{1}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, contributed := r.BuildPrompt(); contributed {
		t.Fatal("expected no prompt contribution from a hook-less module")
	}
}

func TestProcessRawCmdlineChains(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(rewriteModule{baseModule{1}, " --first"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(rewriteModule{baseModule{2}, " --second"}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	actual := r.ProcessRawCmdline("ls")
	expected := "ls --first --second"
	if actual != expected {
		t.Fatalf("unexpected rewritten line; actual: %q, expected: %q", actual, expected)
	}
}

func TestProcessBuiltin(t *testing.T) {
	tests := map[string]struct {
		claims   []bool
		expected bool
	}{
		"no plugins claim":  {claims: []bool{false, false}, expected: false},
		"one plugin claims": {claims: []bool{false, true}, expected: true},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			r := NewRegistry()
			for i, claim := range test.claims {
				if err := r.Register(builtinModule{baseModule{i}, claim}, nil); err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
			}

			cmd := &parse.Command{Argv: []string{"ls"}}
			if actual := r.ProcessBuiltin(cmd); actual != test.expected {
				t.Fatalf("unexpected claim; actual: %v, expected: %v", actual, test.expected)
			}
		})
	}
}

func TestCommandStatusChangeShortCircuits(t *testing.T) {
	r := NewRegistry()

	firstCalls, secondCalls := 0, 0
	if err := r.Register(statusModule{baseModule{1}, true, &firstCalls}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(statusModule{baseModule{2}, true, &secondCalls}, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !r.CommandStatusChange(&job.Command{}, 0) {
		t.Fatal("expected the event to be claimed")
	}
	if firstCalls != 1 || secondCalls != 0 {
		t.Fatalf("expected the first claimer to short-circuit; first: %d, second: %d", firstCalls, secondCalls)
	}
}
