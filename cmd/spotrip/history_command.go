package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"spotrip/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect previous rip runs",
	}

	historyCmd.AddCommand(newHistoryListCommand(ctx))
	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryPruneCommand(ctx))

	return historyCmd
}

func newHistoryListCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				runs, err := store.RecentRuns(cmd.Context(), limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				tbl := newLedgerTable(
					column{title: "Run"},
					column{title: "Started"},
					column{title: "Format"},
					column{title: "Ripped", numeric: true},
					column{title: "Failed", numeric: true},
					column{title: "Aborted", numeric: true},
					column{title: "Skipped", numeric: true},
					column{title: "Status"},
				)
				for _, run := range runs {
					tbl.add(
						shortID(run.ID),
						run.StartedAt.Local().Format("2006-01-02 15:04"),
						run.Format,
						run.Succeeded,
						run.Failed,
						run.Aborted,
						run.Skipped,
						runStatus(run),
					)
				}
				fmt.Fprintln(out, tbl.withTotals("total"))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the tracks of one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withHistory(func(store *history.Store) error {
				run, err := findRun(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				outcomes, err := store.Outcomes(cmd.Context(), run.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run %s (%s)\n", run.ID, runStatus(*run))
				fmt.Fprintf(out, "Sources: %s\n", strings.Join(run.Sources, ", "))
				if run.ErrorMessage != "" {
					fmt.Fprintf(out, "Error: %s\n", run.ErrorMessage)
				}

				tbl := newLedgerTable(
					column{title: "#", numeric: true},
					column{title: "Track"},
					column{title: "State"},
					column{title: "Attempts", numeric: true},
					column{title: "Output", maxWidth: 60},
				)
				for _, o := range outcomes {
					detail := o.OutputPath
					if o.ErrorMessage != "" {
						detail = o.ErrorMessage
					}
					tbl.add(
						strconv.Itoa(o.Position+1),
						o.Artist+" - "+o.Title,
						o.State.String(),
						o.Attempts,
						detail,
					)
				}
				fmt.Fprintln(out, tbl)
				return nil
			})
		},
	}
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete runs older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return ctx.withHistory(func(store *history.Store) error {
				removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s)\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "Remove runs started longer ago than this")
	return cmd
}

func (c *commandContext) withHistory(fn func(*history.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := history.Open(cfg)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer store.Close()
	return fn(store)
}

// findRun resolves a full run ID or an unambiguous prefix of one.
func findRun(ctx context.Context, store *history.Store, id string) (*history.Run, error) {
	id = strings.TrimSpace(id)
	run, err := store.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	if run != nil {
		return run, nil
	}
	runs, err := store.RecentRuns(ctx, 1000)
	if err != nil {
		return nil, err
	}
	var match *history.Run
	for i := range runs {
		if !strings.HasPrefix(runs[i].ID, id) {
			continue
		}
		if match != nil {
			return nil, fmt.Errorf("run id %q is ambiguous", id)
		}
		match = &runs[i]
	}
	if match == nil {
		return nil, fmt.Errorf("run %q not found", id)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func runStatus(run history.Run) string {
	switch {
	case !run.Finished():
		return "running"
	case run.ErrorMessage != "":
		return "error"
	case run.Aborted > 0:
		return "aborted"
	case run.Failed > 0:
		return "partial"
	default:
		return "complete"
	}
}
