package pipeline

import (
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/me/weft/internal/device"
)

// Parser parses and validates pipeline descriptions.
type Parser struct {
	logger *slog.Logger
}

// New creates a Parser.
func New(logger *slog.Logger) *Parser {
	return &Parser{logger: logger.With("component", "pipeline")}
}

// Parse unmarshals a YAML pipeline and validates it.
func (p *Parser) Parse(data []byte) (*Pipeline, error) {
	var pl Pipeline
	if err := yaml.Unmarshal(data, &pl); err != nil {
		return nil, fmt.Errorf("parse pipeline: %w", err)
	}
	if err := p.Validate(&pl); err != nil {
		return nil, err
	}
	p.logger.Debug("pipeline parsed", "name", pl.Name, "tasks", len(pl.Tasks))
	return &pl, nil
}

// Validate checks structural rules: unique task names, known kinds, known
// deps, and a resolvable kernel for kernel tasks. Cycle detection is the
// scheduler's job.
func (p *Parser) Validate(pl *Pipeline) error {
	if pl.Name == "" {
		return fmt.Errorf("pipeline has no name")
	}
	if len(pl.Tasks) == 0 {
		return fmt.Errorf("pipeline %s has no tasks", pl.Name)
	}

	names := make(map[string]bool, len(pl.Tasks))
	for _, td := range pl.Tasks {
		if td.Name == "" {
			return fmt.Errorf("pipeline %s: task with empty name", pl.Name)
		}
		if names[td.Name] {
			return fmt.Errorf("pipeline %s: duplicate task %q", pl.Name, td.Name)
		}
		names[td.Name] = true
	}

	for _, td := range pl.Tasks {
		switch td.Kind {
		case "cpu":
		case "kernel":
			if _, err := ParseKernel(td.Kernel); err != nil {
				return fmt.Errorf("task %q: %w", td.Name, err)
			}
		case "spin":
			if td.Yields < 1 {
				return fmt.Errorf("task %q: spin task needs yields >= 1", td.Name)
			}
		default:
			return fmt.Errorf("task %q: unknown kind %q", td.Name, td.Kind)
		}

		for _, dep := range td.Deps {
			if !names[dep] {
				return fmt.Errorf("task %q: unknown dep %q", td.Name, dep)
			}
			if dep == td.Name {
				return fmt.Errorf("task %q depends on itself", td.Name)
			}
		}
	}
	return nil
}

var kernelSpecRe = regexp.MustCompile(`^(\w+)(?:\(([^)]*)\))?$`)

// ParseKernel resolves a kernel spec from the catalog: "noop",
// "sleep(2ms)", or "saxpy(1024)".
func ParseKernel(spec string) (device.Kernel, error) {
	m := kernelSpecRe.FindStringSubmatch(spec)
	if m == nil {
		return nil, fmt.Errorf("malformed kernel spec %q", spec)
	}
	name, arg := m[1], m[2]

	switch name {
	case "noop":
		return device.Noop(), nil
	case "sleep":
		d, err := time.ParseDuration(arg)
		if err != nil {
			return nil, fmt.Errorf("kernel sleep: bad duration %q: %w", arg, err)
		}
		return device.Sleep(d), nil
	case "saxpy":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("kernel saxpy: bad element count %q", arg)
		}
		return device.Saxpy(n), nil
	default:
		return nil, fmt.Errorf("unknown kernel %q", name)
	}
}
