package cli

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jiuai233/StreamDeck/internal/domain"
)

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded scans, or the models of one scan",
		Long: `Show recorded scans newest first. With a run id, show every model of that
scan with its hotkey count.

Examples:
  vtsdeck history
  vtsdeck history --limit 5
  vtsdeck history 6f1c0b52-8c7e-4f0e-9d4b-2a1f0e3c9b7a`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := a.history()
			if err != nil {
				return err
			}
			defer st.Close()

			if len(args) == 1 {
				run, err := st.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if run == nil {
					return fmt.Errorf("run %s not found", args[0])
				}
				a.printRun(run)
				return nil
			}

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			a.printRuns(runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of scans to show")
	return cmd
}

func (a *app) printRuns(runs []domain.RunResult) {
	if len(runs) == 0 {
		fmt.Fprintln(a.out, infoStyle.Render("No scans recorded yet"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Run", "Started", "Duration", "Models", "Skipped", "Endpoint"})
	for _, r := range runs {
		t.AppendRow(table.Row{
			r.RunID,
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			r.Succeeded + r.Skipped,
			r.Skipped,
			r.Endpoint,
		})
	}
	t.Render()
}

func (a *app) printRun(run *domain.RunResult) {
	fmt.Fprintln(a.out, headerStyle.Render(fmt.Sprintf("Run %s (%s)", run.RunID, run.StartedAt.Local().Format("2006-01-02 15:04:05"))))

	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Model", "Hotkeys", "Icon", "Status"})
	for i, e := range run.Entries {
		status := "ok"
		if e.Skipped {
			status = "skipped"
			if e.Failure != "" {
				status += ": " + e.Failure
			}
		}
		t.AppendRow(table.Row{i + 1, e.Model.ModelName, len(e.Hotkeys), e.Icon, status})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d ok, %d skipped", run.Succeeded, run.Skipped)})
	t.Render()
}
