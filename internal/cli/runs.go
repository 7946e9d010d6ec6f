package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/me/weft/internal/trace"
)

func newRunsCmd() *cobra.Command {
	var db string

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect recorded runs",
	}
	cmd.PersistentFlags().StringVar(&db, "db", defaultTraceDB(), "SQLite trace database path (or WEFT_DB env)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listRuns(db)
		},
	}

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run and its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return showRun(db, args[0])
		},
	}

	cmd.AddCommand(list, show)
	return cmd
}

func openTraceStore(db string) (*trace.SQLiteStore, error) {
	if db == "" {
		return nil, fmt.Errorf("no trace database: pass --db or set WEFT_DB")
	}
	return trace.NewSQLiteStore(db, logger)
}

func listRuns(db string) error {
	st, err := openTraceStore(db)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(context.Background(), 50)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tPIPELINE\tSTATE\tTASKS\tWORKERS\tSTARTED")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\n",
			run.ID, run.Pipeline, run.State, run.Tasks, run.Workers,
			humanize.Time(run.StartedAt))
	}
	return tw.Flush()
}

func showRun(db, id string) error {
	st, err := openTraceStore(db)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	run, err := st.GetRun(ctx, id)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}

	fmt.Printf("run %s: pipeline %s, state %s, %d tasks on %d workers\n",
		run.ID, run.Pipeline, run.State, run.Tasks, run.Workers)
	if run.Error != "" {
		fmt.Printf("error: %s\n", run.Error)
	}
	if run.FinishedAt != nil {
		fmt.Printf("duration: %s\n", run.FinishedAt.Sub(run.StartedAt).Round(time.Microsecond))
	}

	events, err := st.ListEvents(ctx, id)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tKIND\tTASK\tWORKER\tSTREAM")
	for _, ev := range events {
		stream := ""
		if ev.Stream != 0 {
			stream = fmt.Sprintf("%d", ev.Stream)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%d\t%s\n", ev.Seq, ev.Kind, ev.Task, ev.Worker, stream)
	}
	return tw.Flush()
}
