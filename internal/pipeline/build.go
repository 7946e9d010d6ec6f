package pipeline

import (
	"fmt"

	"github.com/me/weft/internal/expr"
	"github.com/me/weft/internal/sched"
)

// Build maps a validated pipeline onto scheduler tasks and wires its edges.
// CPU task expressions evaluate against ev's shared state. Returns the
// handle for every task by name.
func Build(pl *Pipeline, s *sched.Scheduler, ev *expr.Evaluator) (map[string]sched.TaskHandle, error) {
	handles := make(map[string]sched.TaskHandle, len(pl.Tasks))

	for _, td := range pl.Tasks {
		td := td
		switch td.Kind {
		case "cpu":
			handles[td.Name] = s.Emplace(func() error {
				if td.Expr == "" {
					return nil
				}
				if _, err := ev.Eval(td.Expr); err != nil {
					return fmt.Errorf("task %s: %w", td.Name, err)
				}
				return nil
			}).Named(td.Name)

		case "kernel":
			kernel, err := ParseKernel(td.Kernel)
			if err != nil {
				return nil, fmt.Errorf("task %s: %w", td.Name, err)
			}
			repeat := td.Repeat
			if repeat < 1 {
				repeat = 1
			}
			handles[td.Name] = s.EmplaceSuspendable(func(y *sched.Yielder) error {
				for i := 0; i < repeat; i++ {
					if err := y.DeviceSuspend(kernel); err != nil {
						return err
					}
				}
				return nil
			}).Named(td.Name)

		case "spin":
			yields := td.Yields
			handles[td.Name] = s.EmplaceSuspendable(func(y *sched.Yielder) error {
				for i := 0; i < yields; i++ {
					y.Suspend()
				}
				return nil
			}).Named(td.Name)

		default:
			return nil, fmt.Errorf("task %s: unknown kind %q", td.Name, td.Kind)
		}
	}

	for _, td := range pl.Tasks {
		for _, dep := range td.Deps {
			handles[dep].Precede(handles[td.Name])
		}
	}

	return handles, nil
}
