package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doeshing/multiprompt/internal/app"
	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/infrastructure/httpapi"
)

// NewServeCommand creates the serve command
func NewServeCommand(container *app.Container) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.Executor == nil || container.Orchestrator == nil {
				return fmt.Errorf(ErrExecutorUnavailable)
			}
			ctx := cmd.Context()

			targets, err := container.Config.GetDefaultTargets()
			if err != nil {
				return err
			}
			if err := container.Executor.LoadHistory(ctx, domain.HistoryQuery{}); err != nil {
				return fmt.Errorf("failed to load history: %w", err)
			}

			addr := listen
			if addr == "" {
				addr = container.Config.GetListenAddress()
			}
			server := httpapi.New(container.Executor, container.Orchestrator, container.Events, container.Logger, targets)
			fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s\n", addr)
			return server.ListenAndServe(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (default from config)")
	return cmd
}
