package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/doeshing/multiprompt/internal/app"
	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/infrastructure/cli/helpers"
)

// NewProvidersCommand creates the providers command with all subcommands
func NewProvidersCommand(container *app.Container) *cobra.Command {
	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "Manage LLM providers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listProviders(cmd.OutOrStdout(), container)
		},
	}

	providersCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List registered providers",
			RunE: func(cmd *cobra.Command, args []string) error {
				return listProviders(cmd.OutOrStdout(), container)
			},
		},
		newProviderToggleCommand(container, true),
		newProviderToggleCommand(container, false),
		newProvidersHealthCommand(container),
		newProviderConfigCommand(container),
	)

	return providersCmd
}

func newProviderToggleCommand(container *app.Container, enabled bool) *cobra.Command {
	use, short := "enable <provider>", "Enable a provider and persist the choice"
	if !enabled {
		use, short = "disable <provider>", "Disable a provider and persist the choice"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setProviderEnabled(cmd.Context(), cmd.OutOrStdout(), container, args[0], enabled)
		},
	}
}

func newProvidersHealthCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "health [provider]",
		Short: "Validate provider API keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return showProviderHealth(cmd.Context(), cmd.OutOrStdout(), container, args[0])
			}
			return showProviderHealth(cmd.Context(), cmd.OutOrStdout(), container, "")
		},
	}
}

func newProviderConfigCommand(container *app.Container) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage saved per-provider generation defaults",
	}

	configCmd.AddCommand(
		&cobra.Command{
			Use:   "show <provider>",
			Short: "Show saved and effective settings",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return showProviderConfig(cmd.Context(), cmd.OutOrStdout(), container, args[0])
			},
		},
		newProviderConfigSetCommand(container),
		&cobra.Command{
			Use:   "reset <provider>",
			Short: "Remove saved settings so built-in defaults apply",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := container.Orchestrator.ResetProviderConfig(cmd.Context(), args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Settings for %s reset to defaults.\n", args[0])
				return nil
			},
		},
	)

	return configCmd
}

// providerConfigFlags collects 'providers config set' flags.
type providerConfigFlags struct {
	temperature  float64
	maxTokens    int
	topP         float64
	systemPrompt string
	imageSize    string
	imageQuality string
	imageStyle   string
	advanced     []string
}

func newProviderConfigSetCommand(container *app.Container) *cobra.Command {
	var flags providerConfigFlags

	cmd := &cobra.Command{
		Use:   "set <provider>",
		Short: "Save generation defaults for a provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return saveProviderConfig(cmd, container, args[0], flags)
		},
	}

	cmd.Flags().Float64Var(&flags.temperature, "temperature", 0, "Default sampling temperature")
	cmd.Flags().IntVar(&flags.maxTokens, "max-tokens", 0, "Default maximum output tokens")
	cmd.Flags().Float64Var(&flags.topP, "top-p", 0, "Default nucleus sampling")
	cmd.Flags().StringVar(&flags.systemPrompt, "system", "", "Default system prompt")
	cmd.Flags().StringVar(&flags.imageSize, "image-size", "", "Default image size")
	cmd.Flags().StringVar(&flags.imageQuality, "image-quality", "", "Default image quality")
	cmd.Flags().StringVar(&flags.imageStyle, "image-style", "", "Default image style")
	cmd.Flags().StringArrayVar(&flags.advanced, "set", nil, "Advanced setting as key=value (value accepts YAML syntax)")
	return cmd
}

// listProviders prints every registered provider
func listProviders(out io.Writer, container *app.Container) error {
	if container.Orchestrator == nil {
		return fmt.Errorf(ErrOrchestratorUnavailable)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tENABLED\tNAME\tLAST ERROR")
	for _, p := range container.Orchestrator.Providers() {
		lastErr := p.LastError
		if lastErr == "" {
			lastErr = "-"
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", p.ID, p.Enabled, p.Name, helpers.Truncate(lastErr, previewLength))
	}
	return w.Flush()
}

// setProviderEnabled toggles the provider for this process and in the config file
func setProviderEnabled(ctx context.Context, out io.Writer, container *app.Container, providerID string, enabled bool) error {
	if container.Orchestrator == nil {
		return fmt.Errorf(ErrOrchestratorUnavailable)
	}
	if err := container.Orchestrator.SetEnabled(providerID, enabled); err != nil {
		return err
	}

	cfg, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if !cfg.HasProvider(providerID) {
		if err := cfg.AddProvider(domain.ProviderSettings{ID: providerID, Enabled: enabled}); err != nil {
			return err
		}
	} else if err := cfg.SetProviderEnabled(providerID, enabled); err != nil {
		return err
	}
	if err := helpers.SaveConfigWithValidation(ctx, container, cfg); err != nil {
		return err
	}

	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	fmt.Fprintf(out, "Provider %s %s.\n", providerID, state)
	return nil
}

// showProviderHealth validates one or every enabled provider key
func showProviderHealth(ctx context.Context, out io.Writer, container *app.Container, providerID string) error {
	if container.Orchestrator == nil {
		return fmt.Errorf(ErrOrchestratorUnavailable)
	}

	results := make(map[string]domain.ProviderHealth)
	if providerID != "" {
		results[providerID] = container.Orchestrator.CheckHealth(ctx, providerID)
	} else {
		results = container.Orchestrator.CheckAllHealth(ctx)
	}

	ids := make([]string, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	unhealthy := 0
	for _, id := range ids {
		health := results[id]
		status := "OK"
		if !health.Healthy {
			status = "FAIL"
			unhealthy++
		}
		fmt.Fprintf(out, "[%s] %s - %s (%dms)\n", status, id, health.Message, health.LatencyMS())
	}

	if unhealthy > 0 {
		return fmt.Errorf("%d provider(s) unhealthy", unhealthy)
	}
	return nil
}

func showProviderConfig(ctx context.Context, out io.Writer, container *app.Container, providerID string) error {
	if container.Orchestrator == nil {
		return fmt.Errorf(ErrOrchestratorUnavailable)
	}
	view, err := container.Orchestrator.ProviderConfig(ctx, providerID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode provider config: %w", err)
	}
	fmt.Fprintln(out, string(data))
	return nil
}

// saveProviderConfig layers the flags that were set over the saved settings
func saveProviderConfig(cmd *cobra.Command, container *app.Container, providerID string, flags providerConfigFlags) error {
	if container.Orchestrator == nil {
		return fmt.Errorf(ErrOrchestratorUnavailable)
	}
	ctx := cmd.Context()

	view, err := container.Orchestrator.ProviderConfig(ctx, providerID)
	if err != nil {
		return err
	}
	current := domain.ProviderConfig{}
	if view.Saved != nil {
		current = *view.Saved
	}

	update, err := providerConfigFromFlags(cmd, flags)
	if err != nil {
		return err
	}

	if err := container.Orchestrator.SaveProviderConfig(ctx, providerID, current.Overlay(update)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Settings for %s saved.\n", providerID)
	return nil
}

// providerConfigFromFlags builds a config holding only the flags the user passed
func providerConfigFromFlags(cmd *cobra.Command, flags providerConfigFlags) (domain.ProviderConfig, error) {
	changed := cmd.Flags().Changed
	var cfg domain.ProviderConfig

	text := &domain.TextDefaults{SystemPrompt: flags.systemPrompt}
	if changed("temperature") {
		text.Temperature = domain.Float64(flags.temperature)
	}
	if changed("max-tokens") {
		text.MaxTokens = domain.Int(flags.maxTokens)
	}
	if changed("top-p") {
		text.TopP = domain.Float64(flags.topP)
	}
	if *text != (domain.TextDefaults{}) {
		cfg.Text = text
	}

	image := &domain.ImageDefaults{Size: flags.imageSize, Quality: flags.imageQuality, Style: flags.imageStyle}
	if *image != (domain.ImageDefaults{}) {
		cfg.Image = image
	}

	for _, pair := range flags.advanced {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return domain.ProviderConfig{}, fmt.Errorf("invalid --set %q: want key=value", pair)
		}
		if cfg.Advanced == nil {
			cfg.Advanced = make(map[string]any)
		}
		cfg.Advanced[strings.TrimSpace(key)] = helpers.ParseYAMLValue(value)
	}
	return cfg, nil
}
