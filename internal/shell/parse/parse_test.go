package parse

import (
	"reflect"
	"testing"
)

func TestParse(t *testing.T) {
	tests := map[string]struct {
		line     string
		expected *CommandLine
	}{
		"empty": {
			line:     "",
			expected: &CommandLine{},
		},
		"whitespace only": {
			line:     "   \t ",
			expected: &CommandLine{},
		},
		"single command": {
			line: "sleep 10",
			expected: &CommandLine{
				Pipelines: []*Pipeline{
					{
						Commands: []*Command{
							{Argv: []string{"sleep", "10"}},
						},
					},
				},
			},
		},
		"background": {
			line: "sleep 10 &",
			expected: &CommandLine{
				Pipelines: []*Pipeline{
					{
						Commands: []*Command{
							{Argv: []string{"sleep", "10"}},
						},
						Background: true,
					},
				},
			},
		},
		"pipeline with output redirection": {
			line: "echo hello | tr a-z A-Z > /tmp/out",
			expected: &CommandLine{
				Pipelines: []*Pipeline{
					{
						Commands: []*Command{
							{Argv: []string{"echo", "hello"}},
							{Argv: []string{"tr", "a-z", "A-Z"}, OutputFile: "/tmp/out"},
						},
					},
				},
			},
		},
		"input redirection": {
			line: "cat < /etc/hostname | wc -l",
			expected: &CommandLine{
				Pipelines: []*Pipeline{
					{
						Commands: []*Command{
							{Argv: []string{"cat"}, InputFile: "/etc/hostname"},
							{Argv: []string{"wc", "-l"}},
						},
					},
				},
			},
		},
		"append redirection": {
			line: "echo hi >> log.txt",
			expected: &CommandLine{
				Pipelines: []*Pipeline{
					{
						Commands: []*Command{
							{Argv: []string{"echo", "hi"}, OutputFile: "log.txt", AppendOut: true},
						},
					},
				},
			},
		},
		"redirection without surrounding spaces": {
			line: "echo hi>out",
			expected: &CommandLine{
				Pipelines: []*Pipeline{
					{
						Commands: []*Command{
							{Argv: []string{"echo", "hi"}, OutputFile: "out"},
						},
					},
				},
			},
		},
		"quoted argument": {
			line: "echo 'a b'",
			expected: &CommandLine{
				Pipelines: []*Pipeline{
					{
						Commands: []*Command{
							{Argv: []string{"echo", "a b"}},
						},
					},
				},
			},
		},
		"quoted pipe is not a stage separator": {
			line: `echo "a|b"`,
			expected: &CommandLine{
				Pipelines: []*Pipeline{
					{
						Commands: []*Command{
							{Argv: []string{"echo", "a|b"}},
						},
					},
				},
			},
		},
		"semicolon separates pipelines": {
			line: "echo a; echo b",
			expected: &CommandLine{
				Pipelines: []*Pipeline{
					{
						Commands: []*Command{
							{Argv: []string{"echo", "a"}},
						},
					},
					{
						Commands: []*Command{
							{Argv: []string{"echo", "b"}},
						},
					},
				},
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			cl, err := Parse(test.line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(cl, test.expected) {
				t.Fatalf("unexpected command line; actual: %+v, expected: %+v", cl, test.expected)
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := map[string]string{
		"dangling pipe":              "cat |",
		"missing output target":      "echo >",
		"missing input target":       "cat <",
		"missing append target":      "echo >>",
		"unterminated quote":         "echo 'x",
		"background with no command": "&",
	}

	for name, line := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(line); err == nil {
				t.Fatalf("expected error parsing %q", line)
			}
		})
	}
}

func TestPipelineText(t *testing.T) {
	cl, err := Parse("echo hello | tr a-z A-Z > /tmp/out")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := "echo hello|tr a-z A-Z"
	if actual := cl.Pipelines[0].Text(); actual != expected {
		t.Fatalf("unexpected pipeline text; actual: %q, expected: %q", actual, expected)
	}
}
