package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/twinsync/twinsync/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	RunID     string
	ListRuns  bool
	Kind      string
	Direction string
	Actor     string
	FromSeq   int64
	ToSeq     int64
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Inspect a journaled run",
		Long: `Inspect the tick-by-tick trace of a journaled run.

Without --run the most recent run is shown. Filters narrow the event
listing; tick rows always cover the selected sequence range.

Examples:
  twinsync trace --db ./journal.db --runs
  twinsync trace --db ./journal.db
  twinsync trace --db ./journal.db --run <id> --kind mirror_spawned
  twinsync trace --db ./journal.db --actor car-17 --from 100 --to 200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the journal database (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "run id (default: most recent run)")
	cmd.Flags().BoolVar(&opts.ListRuns, "runs", false, "list runs instead of a trace")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter events by kind")
	cmd.Flags().StringVar(&opts.Direction, "direction", "", "filter events by direction")
	cmd.Flags().StringVar(&opts.Actor, "actor", "", "filter events by source or mirror id")
	cmd.Flags().Int64Var(&opts.FromSeq, "from", 0, "first tick sequence")
	cmd.Flags().Int64Var(&opts.ToSeq, "to", 0, "last tick sequence (0 = end)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func showTrace(opts *TraceOptions, cmd *cobra.Command) error {
	store, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "open journal", err)
	}
	defer store.Close()

	ctx := cmd.Context()
	out := opts.formatter(cmd)

	if opts.ListRuns {
		runs, err := store.Runs(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "list runs", err)
		}
		if opts.Format == "json" {
			return out.Success(runs)
		}
		for _, run := range runs {
			status := "running"
			if run.FinishedAt != nil {
				status = "finished"
			}
			out.Textf("%s  %s  authority=%s  step=%s  ticks=%d  %s\n",
				run.ID, run.StartedAt.Format("2006-01-02 15:04:05"),
				run.Authority, run.StepLength, run.Ticks, status)
		}
		return nil
	}

	runID := opts.RunID
	if runID == "" {
		latest, err := store.LatestRun(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "resolve run", err)
		}
		runID = latest.ID
	}

	filter := journal.Filter{
		Kind:      opts.Kind,
		Direction: opts.Direction,
		Actor:     opts.Actor,
		FromSeq:   opts.FromSeq,
		ToSeq:     opts.ToSeq,
	}

	ticks, err := store.Ticks(ctx, runID, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "read ticks", err)
	}
	events, err := store.Events(ctx, runID, filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "read events", err)
	}

	if opts.Format == "json" {
		return out.Success(traceOutput{Run: runID, Ticks: ticks, Events: events})
	}

	out.Textf("run %s: %d ticks, %d matching events\n", runID, len(ticks), len(events))
	byTick := make(map[int64][]journal.EventRow, len(events))
	for _, ev := range events {
		byTick[ev.Seq] = append(byTick[ev.Seq], ev)
	}
	for _, tick := range ticks {
		out.Textf("tick %d  mirrored=%d  elapsed=%s\n", tick.Seq, tick.Mirrored, tick.Elapsed)
		for _, ev := range byTick[tick.Seq] {
			out.Textf("  %s\n", formatEvent(ev))
		}
	}
	return nil
}

type traceOutput struct {
	Run    string             `json:"run"`
	Ticks  []journal.TickRow  `json:"ticks"`
	Events []journal.EventRow `json:"events"`
}

func formatEvent(ev journal.EventRow) string {
	switch {
	case ev.Landmark != "":
		return fmt.Sprintf("%s %s landmark=%s state=%s", ev.Kind, ev.Direction, ev.Landmark, ev.Detail)
	case ev.Mirror != "":
		return fmt.Sprintf("%s %s %s -> %s", ev.Kind, ev.Direction, ev.Source, ev.Mirror)
	default:
		s := fmt.Sprintf("%s %s %s", ev.Kind, ev.Direction, ev.Source)
		if ev.Detail != "" {
			s += " (" + ev.Detail + ")"
		}
		return s
	}
}
