package commands

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/doeshing/multiprompt/internal/app"
	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/infrastructure/cli/helpers"
)

const modelTestPrompt = "Reply with the single word: pong"

// NewModelsCommand creates the models command with all subcommands
func NewModelsCommand(container *app.Container) *cobra.Command {
	modelsCmd := &cobra.Command{
		Use:   "models",
		Short: "Browse model catalogs and choose default targets",
	}

	modelsCmd.AddCommand(
		newModelsListCommand(container),
		newModelsTestCommand(container),
		newModelsUseCommand(container),
	)

	return modelsCmd
}

// newModelsListCommand creates the 'models list' subcommand
func newModelsListCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "list [provider]",
		Short: "List models of every enabled provider, or of one provider",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := ""
			if len(args) == 1 {
				provider = args[0]
			}
			return listModels(cmd.Context(), cmd.OutOrStdout(), container, provider)
		},
	}
}

// newModelsTestCommand creates the 'models test' subcommand
func newModelsTestCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "test <provider/model>",
		Short: "Send a short prompt to one model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return testModel(cmd.Context(), cmd.OutOrStdout(), container, args[0])
		},
	}
}

// newModelsUseCommand creates the 'models use' subcommand
func newModelsUseCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "use <provider/model>...",
		Short: "Set the default targets used when a prompt names none",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return useModels(cmd.Context(), cmd.OutOrStdout(), container, args)
		},
	}
}

// listModels prints catalogs in a table
func listModels(ctx context.Context, out io.Writer, container *app.Container, provider string) error {
	if container.Orchestrator == nil {
		return fmt.Errorf(ErrOrchestratorUnavailable)
	}

	var rows []domain.ProviderModels
	if provider != "" {
		models, err := container.Orchestrator.Models(ctx, provider)
		if err != nil {
			return fmt.Errorf("failed to list models for %s: %w", provider, err)
		}
		rows = []domain.ProviderModels{{Provider: domain.ProviderDescriptor{ID: provider}, Models: models}}
	} else {
		rows = container.Orchestrator.AllModels(ctx)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tCAPABILITIES\tCONTEXT\tPRICE IN/OUT PER 1K")
	for _, row := range rows {
		if row.Error != "" {
			fmt.Fprintf(w, "%s/*\terror: %s\t\t\n", row.Provider.ID, row.Error)
			continue
		}
		for _, model := range row.Models {
			fmt.Fprintf(w, "%s/%s\t%s\t%s\t%s\n",
				row.Provider.ID,
				model.ID,
				helpers.FormatCapabilities(model.Capabilities),
				helpers.FormatContextLength(model.Capabilities.ContextLength),
				helpers.FormatPricing(model.Pricing))
		}
	}
	return w.Flush()
}

// testModel sends a short prompt through the orchestrator
func testModel(ctx context.Context, out io.Writer, container *app.Container, raw string) error {
	if container.Orchestrator == nil {
		return fmt.Errorf(ErrOrchestratorUnavailable)
	}

	target, err := domain.ParseTarget(raw)
	if err != nil {
		return err
	}

	result := container.Orchestrator.GenerateText(ctx, target.ProviderID, modelTestPrompt,
		domain.GenerationOptions{Model: target.ModelID, MaxTokens: domain.Int(16)})
	if !result.Success {
		fmt.Fprintf(out, "%s failed after %s\n", target, helpers.FormatDuration(result.Duration))
		return result.Failure()
	}

	fmt.Fprintf(out, "%s responded in %s: %s\n", target, helpers.FormatDuration(result.Duration), helpers.Truncate(result.Data.Content, previewLength))
	return nil
}

// useModels stores default targets in the config file
func useModels(ctx context.Context, out io.Writer, container *app.Container, targets []string) error {
	cfg, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	for _, raw := range targets {
		if _, err := domain.ParseTarget(raw); err != nil {
			return err
		}
	}

	cfg.Preferences.DefaultTargets = append([]string(nil), targets...)
	if err := helpers.SaveConfigWithValidation(ctx, container, cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "Default targets: %v\n", targets)
	return nil
}
