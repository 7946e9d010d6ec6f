package pipeline

import (
	"io"
	"log/slog"
	"strings"
	"testing"
)

func testParser() *Parser {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const validPipeline = `
name: demo
tasks:
  - name: init
    kind: cpu
    expr: "state.x = 1"
  - name: blur
    kind: kernel
    kernel: sleep(1ms)
    deps: [init]
  - name: sharpen
    kind: kernel
    kernel: saxpy(64)
    repeat: 2
    deps: [init]
  - name: tick
    kind: spin
    yields: 3
    deps: [blur, sharpen]
`

func TestParse_Valid(t *testing.T) {
	pl, err := testParser().Parse([]byte(validPipeline))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if pl.Name != "demo" {
		t.Errorf("Name = %q, want demo", pl.Name)
	}
	if len(pl.Tasks) != 4 {
		t.Fatalf("tasks = %d, want 4", len(pl.Tasks))
	}
	if pl.Tasks[2].Repeat != 2 {
		t.Errorf("sharpen repeat = %d, want 2", pl.Tasks[2].Repeat)
	}
	if got := pl.Tasks[3].Deps; len(got) != 2 {
		t.Errorf("tick deps = %v, want 2 entries", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "no name",
			yaml:    "tasks: [{name: a, kind: cpu}]",
			wantErr: "no name",
		},
		{
			name:    "no tasks",
			yaml:    "name: empty",
			wantErr: "no tasks",
		},
		{
			name:    "duplicate task",
			yaml:    "name: p\ntasks: [{name: a, kind: cpu}, {name: a, kind: cpu}]",
			wantErr: "duplicate task",
		},
		{
			name:    "unknown kind",
			yaml:    "name: p\ntasks: [{name: a, kind: quantum}]",
			wantErr: "unknown kind",
		},
		{
			name:    "unknown dep",
			yaml:    "name: p\ntasks: [{name: a, kind: cpu, deps: [ghost]}]",
			wantErr: "unknown dep",
		},
		{
			name:    "self dep",
			yaml:    "name: p\ntasks: [{name: a, kind: cpu, deps: [a]}]",
			wantErr: "depends on itself",
		},
		{
			name:    "bad kernel",
			yaml:    "name: p\ntasks: [{name: a, kind: kernel, kernel: warp(9)}]",
			wantErr: "unknown kernel",
		},
		{
			name:    "bad sleep duration",
			yaml:    "name: p\ntasks: [{name: a, kind: kernel, kernel: sleep(fast)}]",
			wantErr: "bad duration",
		},
		{
			name:    "spin without yields",
			yaml:    "name: p\ntasks: [{name: a, kind: spin}]",
			wantErr: "yields >= 1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := testParser().Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("Parse succeeded, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseKernel(t *testing.T) {
	for _, spec := range []string{"noop", "sleep(2ms)", "saxpy(1024)"} {
		if _, err := ParseKernel(spec); err != nil {
			t.Errorf("ParseKernel(%q): %v", spec, err)
		}
	}
	for _, spec := range []string{"", "sleep", "saxpy(-1)", "saxpy(a)", "no op"} {
		if _, err := ParseKernel(spec); err == nil {
			t.Errorf("ParseKernel(%q) succeeded, want error", spec)
		}
	}
}
