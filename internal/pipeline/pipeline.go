// Package pipeline parses declarative YAML pipeline descriptions and builds
// the corresponding task graph on a scheduler.
package pipeline

// Pipeline is a parsed pipeline description.
type Pipeline struct {
	Name  string    `yaml:"name"`
	Tasks []TaskDef `yaml:"tasks"`
}

// TaskDef describes one task in a pipeline.
//
// Kinds:
//   - "cpu": a static task; Expr is a JavaScript snippet evaluated against
//     the run's shared state object.
//   - "kernel": a suspendable task that device-suspends on the named
//     catalog kernel, Repeat times (default 1).
//   - "spin": a suspendable task that plain-suspends Yields times.
type TaskDef struct {
	Name   string   `yaml:"name"`
	Kind   string   `yaml:"kind"`
	Expr   string   `yaml:"expr,omitempty"`
	Kernel string   `yaml:"kernel,omitempty"`
	Repeat int      `yaml:"repeat,omitempty"`
	Yields int      `yaml:"yields,omitempty"`
	Deps   []string `yaml:"deps,omitempty"`
}
