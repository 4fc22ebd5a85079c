package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/jiuai233/StreamDeck/internal/protocol"
)

func newModelsCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "models",
		Short: "List the models VTube Studio knows about",
		Long: `List the models VTube Studio knows about without loading any of them.

Examples:
  vtsdeck models
  vtsdeck models --output models.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			models, err := a.fetchModels(cmd.Context())
			if err != nil {
				return err
			}
			if output != "" {
				raw, err := json.MarshalIndent(models, "", "  ")
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, raw, 0o644); err != nil {
					return fmt.Errorf("write models: %w", err)
				}
			}
			a.printModels(models)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Also write the list as JSON to this file")
	return cmd
}

func (a *app) fetchModels(ctx context.Context) ([]protocol.Model, error) {
	client, _, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	if err := client.Authenticate(ctx); err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}
	models, err := client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	return models, nil
}

func (a *app) printModels(models []protocol.Model) {
	if len(models) == 0 {
		fmt.Fprintln(a.out, infoStyle.Render("No models found"))
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(a.out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Name", "ID", "Loaded"})
	for i, m := range models {
		loaded := ""
		if m.ModelLoaded {
			loaded = "yes"
		}
		t.AppendRow(table.Row{i + 1, m.ModelName, m.ModelID, loaded})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d models", len(models))})
	t.Render()
}
