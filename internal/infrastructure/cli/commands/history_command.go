package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/doeshing/multiprompt/internal/app"
	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/infrastructure/cli/helpers"
)

// NewHistoryCommand creates the history command with all subcommands
func NewHistoryCommand(container *app.Container) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect prompt history",
	}

	historyCmd.AddCommand(
		newHistoryListCommand(container),
		newHistorySearchCommand(container),
		newHistoryShowCommand(container),
		newHistoryDeleteCommand(container),
		newHistoryClearCommand(container),
		newHistoryExportCommand(container),
		newHistoryStatsCommand(container),
		newHistoryRetainCommand(container),
	)

	return historyCmd
}

// newHistoryListCommand creates the 'history list' subcommand
func newHistoryListCommand(container *app.Container) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent prompts, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listHistoryEntries(cmd.Context(), cmd.OutOrStdout(), container, domain.HistoryQuery{Limit: limit})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", DefaultHistoryLimit, "Max entries to show")
	return cmd
}

// newHistorySearchCommand creates the 'history search' subcommand
func newHistorySearchCommand(container *app.Container) *cobra.Command {
	var query string
	var searchLimit int

	cmd := &cobra.Command{
		Use:   "search [keyword]",
		Short: "Search prompts and responses for a keyword",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				query = args[0]
			}
			if query == "" {
				return fmt.Errorf(ErrQueryRequired)
			}
			return listHistoryEntries(cmd.Context(), cmd.OutOrStdout(), container, domain.HistoryQuery{Limit: searchLimit, Search: query})
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "Search keyword")
	cmd.Flags().IntVar(&searchLimit, "limit", DefaultHistorySearchLimit, "Limit search results")
	return cmd
}

func newHistoryShowCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show every response of one prompt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := loadEntryByDurableID(cmd.Context(), container, args[0])
			if err != nil {
				return err
			}
			renderEntry(cmd.OutOrStdout(), entry)
			return nil
		},
	}
}

func newHistoryDeleteCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a prompt and all of its responses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entry, err := loadEntryByDurableID(cmd.Context(), container, args[0])
			if err != nil {
				return err
			}
			if err := container.Executor.DeleteEntry(cmd.Context(), entry.ID); err != nil {
				return fmt.Errorf("failed to delete entry %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry %s (%d responses).\n", args[0], len(entry.Responses))
			return nil
		},
	}
}

// newHistoryClearCommand creates the 'history clear' subcommand
func newHistoryClearCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete all prompts (provider settings are kept)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return clearHistory(cmd.Context(), cmd.OutOrStdout(), container)
		},
	}
}

// newHistoryExportCommand creates the 'history export' subcommand
func newHistoryExportCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Export history to a JSONL file (use - for stdout)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return exportHistory(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), container, args[0])
		},
	}
}

// newHistoryStatsCommand creates the 'history stats' subcommand
func newHistoryStatsCommand(container *app.Container) *cobra.Command {
	var top int

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database size and per-model success rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showHistoryStats(cmd.Context(), cmd.OutOrStdout(), container, top)
		},
	}
	cmd.Flags().IntVar(&top, "top", DefaultTopTargets, "Number of targets to show (0 for all)")
	return cmd
}

// newHistoryRetainCommand creates the 'history retain' subcommand
func newHistoryRetainCommand(container *app.Container) *cobra.Command {
	var retainDays int

	cmd := &cobra.Command{
		Use:   "retain",
		Short: "Prune history older than N days and update retention policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			if retainDays <= 0 {
				return fmt.Errorf(ErrInvalidRetainDays)
			}
			return updateHistoryRetention(cmd.Context(), cmd.OutOrStdout(), container, retainDays)
		},
	}

	cmd.Flags().IntVar(&retainDays, "days", DefaultHistoryRetainDays, "Days to retain history")
	return cmd
}

// listHistoryEntries reloads history through the executor and prints one line per entry
func listHistoryEntries(ctx context.Context, out io.Writer, container *app.Container, query domain.HistoryQuery) error {
	if container.Executor == nil {
		return fmt.Errorf(ErrExecutorUnavailable)
	}

	if err := container.Executor.LoadHistory(ctx, query); err != nil {
		return fmt.Errorf("failed to load history: %w", err)
	}

	entries := container.Executor.Entries()
	if len(entries) == 0 {
		fmt.Fprintln(out, MsgNoHistoryRecorded)
		return nil
	}

	for _, entry := range entries {
		durableID, _ := container.Executor.DurableEntryID(entry.ID)
		succeeded := 0
		for _, resp := range entry.Responses {
			if resp.Status == domain.ResponseSuccess {
				succeeded++
			}
		}
		fmt.Fprintf(out, "#%-5d | %-14s | %d/%d ok | %s\n",
			durableID,
			helpers.RelativeTime(entry.CreatedAt),
			succeeded,
			len(entry.Responses),
			helpers.Truncate(entry.Prompt, previewLength))
	}

	return nil
}

// loadEntryByDurableID resolves the numeric id printed by 'history list'.
func loadEntryByDurableID(ctx context.Context, container *app.Container, raw string) (*domain.PromptEntry, error) {
	if container.Executor == nil {
		return nil, fmt.Errorf(ErrExecutorUnavailable)
	}

	durableID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid entry id %q", raw)
	}

	if err := container.Executor.LoadHistory(ctx, domain.HistoryQuery{Limit: MaxHistoryAnalysisRecords}); err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	entryID, ok := container.Executor.EntryIDForDurable(durableID)
	if !ok {
		return nil, fmt.Errorf("entry %d not found", durableID)
	}
	entry, ok := container.Executor.Entry(entryID)
	if !ok {
		return nil, fmt.Errorf("entry %d not found", durableID)
	}
	return entry, nil
}

func renderEntry(out io.Writer, entry *domain.PromptEntry) {
	fmt.Fprintf(out, "Prompt (%s, %s):\n  %s\n",
		entry.CreatedAt.Format(domain.TimestampFormat),
		entry.Status,
		entry.Prompt)

	for _, resp := range entry.Responses {
		fmt.Fprintf(out, "\n[%s] %s %s\n", resp.Target(), helpers.StatusLabel(resp.Status), helpers.FormatDuration(resp.Duration))
		if resp.Content != "" {
			fmt.Fprintln(out, resp.Content)
		}
		if resp.Error != "" {
			fmt.Fprintf(out, "error (%s): %s\n", resp.ErrorCode, resp.Error)
		}
	}
}

// clearHistory deletes every entry from the history database
func clearHistory(ctx context.Context, out io.Writer, container *app.Container) error {
	if container.HistoryStore == nil {
		return fmt.Errorf(ErrHistoryStoreUnavailable)
	}

	if err := container.HistoryStore.Clear(ctx); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}

	fmt.Fprintln(out, "History cleared.")
	return nil
}

// exportHistory exports history to a JSONL file
func exportHistory(ctx context.Context, stdout, stderr io.Writer, container *app.Container, path string) error {
	store := container.HistoryStore
	if store == nil {
		return fmt.Errorf(ErrHistoryStoreUnavailable)
	}

	if path == "-" {
		_, err := store.ExportJSON(ctx, stdout)
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	count, err := store.ExportJSON(ctx, file)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("failed to export history to %s: %w", path, err)
	}

	fmt.Fprintf(stderr, "Exported %s entries to %s\n", humanize.Comma(int64(count)), path)
	return nil
}

// showHistoryStats displays database statistics and per-target success rates
func showHistoryStats(ctx context.Context, out io.Writer, container *app.Container, top int) error {
	store := container.HistoryStore
	if store == nil {
		return fmt.Errorf(ErrHistoryStoreUnavailable)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read history statistics: %w", err)
	}

	if stats.Entries == 0 {
		fmt.Fprintln(out, MsgNoHistoryRecorded)
		return nil
	}

	fmt.Fprintf(out, "Database: %s (%s, schema v%d)\n", store.Path(), humanize.Bytes(uint64(stats.SizeBytes)), stats.SchemaVersion)
	fmt.Fprintf(out, "Entries: %s\nResponses: %s\n", humanize.Comma(int64(stats.Entries)), humanize.Comma(int64(stats.Responses)))
	fmt.Fprintf(out, "Span: %s to %s\n", helpers.RelativeTime(stats.Oldest), helpers.RelativeTime(stats.Newest))

	fmt.Fprintln(out, "Response status:")
	statuses := make([]string, 0, len(stats.ByStatus))
	for status := range stats.ByStatus {
		statuses = append(statuses, string(status))
	}
	sort.Strings(statuses)
	for _, status := range statuses {
		fmt.Fprintf(out, "  %s: %d\n", status, stats.ByStatus[domain.ResponseStatus(status)])
	}

	if container.Executor == nil {
		return nil
	}
	if err := container.Executor.LoadHistory(ctx, domain.HistoryQuery{Limit: MaxHistoryAnalysisRecords}); err != nil {
		return fmt.Errorf("failed to load history for analysis: %w", err)
	}

	fmt.Fprintln(out, "Targets:")
	for _, stat := range helpers.CalculateTopTargets(container.Executor.Entries(), top) {
		fmt.Fprintf(out, "  %-40s %4d runs  %5.1f%% ok  avg %s\n",
			stat.Target, stat.Total, stat.SuccessRate(), helpers.FormatDuration(stat.AvgTime))
	}

	return nil
}

// updateHistoryRetention prunes old history and updates retention policy
func updateHistoryRetention(ctx context.Context, out io.Writer, container *app.Container, days int) error {
	store := container.HistoryStore
	if store == nil {
		return fmt.Errorf(ErrHistoryStoreUnavailable)
	}

	removed, err := store.PruneBefore(ctx, time.Now().AddDate(0, 0, -days))
	if err != nil {
		return fmt.Errorf("failed to prune old history: %w", err)
	}

	cfg, err := container.ConfigProvider.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	cfg.History.RetentionDays = days

	if err := helpers.SaveConfigWithValidation(ctx, container, cfg); err != nil {
		return err
	}

	fmt.Fprintf(out, "Removed %s entries; retaining the last %d days of history.\n", humanize.Comma(removed), days)
	return nil
}
