// Package cli is the vtsdeck console surface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jiuai233/StreamDeck/internal/config"
)

// errAborted is returned when the operator declines to continue at a pause.
var errAborted = errors.New("aborted by operator")

// NewRootCmd creates the vtsdeck command tree. Without a subcommand it
// scans, generates and installs in one go.
func NewRootCmd() *cobra.Command {
	a := &app{}
	scan := &scanOptions{}
	var noInstall bool

	cmd := &cobra.Command{
		Use:   "vtsdeck",
		Short: "Build StreamDock profiles from the models and hotkeys of VTube Studio",
		Long: `vtsdeck connects to the VTube Studio plugin API, loads every model once to
read its hotkeys, and writes a StreamDock profile per model plus a Home
profile that switches between them.

Without a subcommand it runs scan, generate and install in sequence.

Examples:
  vtsdeck
  vtsdeck --non-interactive --no-install
  vtsdeck scan --select --output models.json
  vtsdeck generate --install
  vtsdeck history`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.load,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := a.scan(cmd.Context(), scan)
			if err != nil {
				return err
			}
			return a.generate(result.Entries, !noInstall)
		},
	}

	cmd.PersistentFlags().String("config", "", "Config file (default is ./config.yaml or ~/.config/vtsdeck/config.yaml)")
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")

	scan.bind(cmd)
	cmd.Flags().BoolVar(&noInstall, "no-install", false, "Generate profiles without copying them into StreamDock")

	cmd.AddCommand(newModelsCmd(a))
	cmd.AddCommand(newScanCmd(a))
	cmd.AddCommand(newGenerateCmd(a))
	cmd.AddCommand(newHistoryCmd(a))

	return cmd
}

// Execute runs the command tree until it finishes or SIGINT/SIGTERM cancels
// it, and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := NewRootCmd()
	if err := cmd.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, warningStyle.Render("Interrupted"))
			return 130
		}
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err)
		return 1
	}
	return 0
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	verbose, _ := cmd.Flags().GetBool("verbose")
	if err := config.SetupLogging(cfg.Logging, verbose, cmd.ErrOrStderr()); err != nil {
		return err
	}

	a.cfg = cfg
	a.out = cmd.OutOrStdout()
	return nil
}
