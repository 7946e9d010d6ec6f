package cli

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/weft/internal/expr"
	"github.com/me/weft/internal/pipeline"
	"github.com/me/weft/internal/sched"
	"github.com/me/weft/internal/trace"
)

func newRunCmd() *cobra.Command {
	var workers int
	var streams int
	var traceDB string

	cmd := &cobra.Command{
		Use:   "run <pipeline.yaml>",
		Short: "Execute a pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(args[0], workers, streams, traceDB)
		},
	}

	cmd.Flags().IntVar(&workers, "workers", 0, "Worker count (default: all CPUs)")
	cmd.Flags().IntVar(&streams, "streams", 0, "Advisory stream count (streams are created lazily)")
	cmd.Flags().StringVar(&traceDB, "trace-db", defaultTraceDB(), "SQLite path for run traces (or WEFT_DB env; empty disables)")

	return cmd
}

func runPipeline(path string, workers, streams int, traceDB string) error {
	ctx := context.Background()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read pipeline: %w", err)
	}
	pl, err := pipeline.New(logger).Parse(data)
	if err != nil {
		return err
	}

	ev, err := expr.NewEvaluator()
	if err != nil {
		return fmt.Errorf("create evaluator: %w", err)
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	var rec *trace.Recorder
	if traceDB != "" {
		st, err := trace.NewSQLiteStore(traceDB, logger)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate trace db: %w", err)
		}
		rec = trace.NewRecorder(st, logger)
	}

	cfg := sched.Config{
		Workers: workers,
		Streams: streams,
		Logger:  logger,
	}
	if rec != nil {
		cfg.Sink = rec
	}
	s := sched.New(cfg)
	defer s.Close()

	if _, err := pipeline.Build(pl, s, ev); err != nil {
		return err
	}

	if rec != nil {
		if err := rec.Begin(ctx, pl.Name, workers, len(pl.Tasks)); err != nil {
			return err
		}
	}

	start := time.Now()
	if err := s.Schedule(); err != nil {
		return err
	}
	runErr := s.Wait()
	elapsed := time.Since(start)

	if rec != nil {
		if err := rec.End(ctx, runErr); err != nil {
			logger.Error("record trace", "error", err)
		}
	}

	if runErr != nil {
		return fmt.Errorf("pipeline %s failed after %s: %w", pl.Name, elapsed.Round(time.Microsecond), runErr)
	}

	fmt.Printf("pipeline %s: %s tasks completed on %s workers in %s\n",
		pl.Name,
		humanize.Comma(int64(len(pl.Tasks))),
		humanize.Comma(int64(workers)),
		elapsed.Round(time.Microsecond),
	)
	if rec != nil {
		fmt.Printf("trace recorded as %s\n", rec.RunID())
	}
	return nil
}
