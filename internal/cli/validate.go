package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/me/weft/internal/expr"
	"github.com/me/weft/internal/pipeline"
	"github.com/me/weft/internal/sched"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <pipeline.yaml>",
		Short: "Validate a pipeline without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePipeline(args[0])
		},
	}
}

func validatePipeline(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pipeline: %w", err)
	}
	pl, err := pipeline.New(logger).Parse(data)
	if err != nil {
		return err
	}

	// Build onto a throwaway scheduler to run the cycle check.
	ev, err := expr.NewEvaluator()
	if err != nil {
		return err
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := sched.New(sched.Config{Workers: 1, Logger: quiet})
	defer s.Close()

	if _, err := pipeline.Build(pl, s, ev); err != nil {
		return err
	}
	if !s.IsDAG() {
		return fmt.Errorf("pipeline %s: %w", pl.Name, sched.ErrGraphCycle)
	}

	fmt.Printf("pipeline %s: %d tasks, ok\n", pl.Name, len(pl.Tasks))
	return nil
}
