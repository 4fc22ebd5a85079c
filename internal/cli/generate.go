package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jiuai233/StreamDeck/internal/domain"
	"github.com/jiuai233/StreamDeck/internal/idmap"
	"github.com/jiuai233/StreamDeck/internal/profile"
)

type generateOptions struct {
	runID   string
	input   string
	install bool
}

func newGenerateCmd(a *app) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write StreamDock profiles from a recorded scan",
		Long: `Write StreamDock profiles from a recorded scan. VTube Studio does not need to
be running. By default the latest scan in the history database is used.

Examples:
  vtsdeck generate
  vtsdeck generate --run 6f1c0b52-8c7e-4f0e-9d4b-2a1f0e3c9b7a
  vtsdeck generate --input run.json --install`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			run, err := a.loadRun(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return a.generate(run.Entries, opts.install)
		},
	}

	cmd.Flags().StringVar(&opts.runID, "run", "", "Use this run from the history database")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "Read the run from a JSON file written by scan --output")
	cmd.Flags().BoolVar(&opts.install, "install", false, "Copy the profiles into the StreamDock profile folder")
	cmd.MarkFlagsMutuallyExclusive("run", "input")
	return cmd
}

func (a *app) loadRun(ctx context.Context, opts *generateOptions) (*domain.RunResult, error) {
	if opts.input != "" {
		raw, err := os.ReadFile(opts.input)
		if err != nil {
			return nil, fmt.Errorf("read run: %w", err)
		}
		var run domain.RunResult
		if err := json.Unmarshal(raw, &run); err != nil {
			return nil, fmt.Errorf("decode run %s: %w", opts.input, err)
		}
		return &run, nil
	}

	st, err := a.history()
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var run *domain.RunResult
	if opts.runID != "" {
		run, err = st.GetRun(ctx, opts.runID)
	} else {
		run, err = st.LatestRun(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("load run: %w", err)
	}
	if run == nil {
		if opts.runID != "" {
			return nil, fmt.Errorf("run %s not found", opts.runID)
		}
		return nil, errors.New("no recorded scan, run `vtsdeck scan` first")
	}
	return run, nil
}

// generate writes the profile bundle and optionally installs it.
func (a *app) generate(entries []domain.Entry, install bool) error {
	ids, err := idmap.Open(a.cfg.Paths.IDMap)
	if err != nil {
		return err
	}
	gen, err := profile.NewGenerator(a.cfg.Generator(), ids)
	if err != nil {
		return err
	}
	bundle, err := gen.Generate(entries)
	if err != nil {
		return err
	}

	fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("Generated %d model profiles and a Home profile (%d pages) in %s",
		len(bundle.Profiles), bundle.Pages, bundle.Dir)))

	if !install {
		return nil
	}
	installDir, err := a.cfg.InstallDir()
	if err != nil {
		return fmt.Errorf("resolve install directory: %w", err)
	}
	installed, err := profile.Install(bundle.Dir, installDir)
	if len(installed) > 0 {
		fmt.Fprintln(a.out, successStyle.Render(fmt.Sprintf("Installed %d profiles into %s", len(installed), installDir)))
		fmt.Fprintln(a.out, infoStyle.Render("Restart the StreamDock software to pick them up"))
	}
	return err
}
