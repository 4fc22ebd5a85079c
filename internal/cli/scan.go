package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jiuai233/StreamDeck/internal/domain"
	"github.com/jiuai233/StreamDeck/internal/driver"
)

// scanOptions holds the flags shared by scan and the root command.
type scanOptions struct {
	selectModels   bool
	models         []string
	nonInteractive bool
	output         string
}

func (o *scanOptions) bind(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&o.selectModels, "select", false, "Pick the models to scan from a list")
	cmd.Flags().StringSliceVar(&o.models, "model", nil, "Only scan these model ids (repeatable)")
	cmd.Flags().BoolVar(&o.nonInteractive, "non-interactive", false, "Never wait for the operator, skip failing models instead")
	cmd.Flags().StringVarP(&o.output, "output", "o", "", "Also write the run as JSON to this file")
	cmd.MarkFlagsMutuallyExclusive("select", "model")
	cmd.MarkFlagsMutuallyExclusive("select", "non-interactive")
}

func newScanCmd(a *app) *cobra.Command {
	opts := &scanOptions{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Load every model in VTube Studio and record its hotkeys",
		Long: `Load each model in VTube Studio once, read its hotkeys and remember the run
so profiles can be generated later without VTube Studio running.

VTube Studio shows an approval popup the first time vtsdeck connects.

Examples:
  vtsdeck scan
  vtsdeck scan --select
  vtsdeck scan --model 0a1b2c --model 3d4e5f --non-interactive
  vtsdeck scan --output run.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := a.scan(cmd.Context(), opts)
			return err
		},
	}
	opts.bind(cmd)
	return cmd
}

// scan runs one enumeration pass and records it in the history database.
func (a *app) scan(ctx context.Context, opts *scanOptions) (*domain.RunResult, error) {
	filter := opts.models
	if opts.selectModels {
		picked, err := a.pickModels(ctx)
		if err != nil {
			return nil, err
		}
		filter = picked
	}

	client, classifier, err := a.session(ctx)
	if err != nil {
		return nil, err
	}

	var operator driver.Operator
	if !opts.nonInteractive {
		operator = consoleOperator(a.out)
	}
	d := driver.New(client, classifier, driver.Options{
		Retry:       a.cfg.Retry,
		Operator:    operator,
		Icons:       a.icons(ctx),
		DefaultIcon: a.cfg.Paths.DefaultIcon,
	})

	fmt.Fprintln(a.out, titleStyle.Render("Scanning VTube Studio at "+client.Endpoint()))
	result, err := d.Run(ctx, filter)
	if err != nil {
		return nil, err
	}

	a.record(ctx, result)
	if opts.output != "" {
		if err := writeRun(opts.output, result); err != nil {
			return nil, err
		}
		fmt.Fprintln(a.out, infoStyle.Render("Run written to "+opts.output))
	}
	a.printSummary(result)
	return result, nil
}

// record keeps the run in the history database. A failure is logged only,
// the run itself is still usable.
func (a *app) record(ctx context.Context, result *domain.RunResult) {
	st, err := a.history()
	if err != nil {
		logrus.WithError(err).Warn("Failed to open run history")
		return
	}
	defer st.Close()

	if err := st.SaveRun(ctx, result); err != nil {
		logrus.WithError(err).WithField("run_id", result.RunID).Warn("Failed to save run")
	}
}

func (a *app) printSummary(result *domain.RunResult) {
	fmt.Fprintln(a.out)
	for _, e := range result.Entries {
		if e.Skipped {
			fmt.Fprintf(a.out, "  %s %s\n", skippedStyle.Render("skipped"), e.Model.ModelName)
			continue
		}
		fmt.Fprintf(a.out, "  %s %s (%d hotkeys)\n", successStyle.Render("ok"), e.Model.ModelName, len(e.Hotkeys))
	}
	fmt.Fprintln(a.out)

	summary := fmt.Sprintf("%d models scanned, %d skipped in %s (run %s)",
		result.Succeeded, result.Skipped,
		result.FinishedAt.Sub(result.StartedAt).Round(time.Second), result.RunID)
	if result.Skipped > 0 {
		fmt.Fprintln(a.out, warningStyle.Render(summary))
	} else {
		fmt.Fprintln(a.out, successStyle.Render(summary))
	}
}

// pickModels lists the models over a short-lived session and lets the
// operator choose some of them.
func (a *app) pickModels(ctx context.Context) ([]string, error) {
	models, err := a.fetchModels(ctx)
	if err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, errors.New("VTube Studio reports no models")
	}

	options := make([]huh.Option[string], 0, len(models))
	for _, m := range models {
		options = append(options, huh.NewOption(m.ModelName, m.ModelID))
	}

	var selected []string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewMultiSelect[string]().
				Title("Models to scan").
				Description("Space toggles, enter confirms").
				Options(options...).
				Filterable(true).
				Value(&selected),
		),
	)
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return nil, errAborted
		}
		return nil, fmt.Errorf("model selection failed: %w", err)
	}
	if len(selected) == 0 {
		return nil, errors.New("no models selected")
	}
	return selected, nil
}

func writeRun(path string, result *domain.RunResult) error {
	raw, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}
