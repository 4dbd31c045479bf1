package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/doeshing/multiprompt/internal/app"
	"github.com/doeshing/multiprompt/internal/application/execution"
	"github.com/doeshing/multiprompt/internal/domain"
	"github.com/doeshing/multiprompt/internal/infrastructure/cli/commands"
)

// continueLast selects the most recent entry for --continue.
const continueLast = "last"

// askOptions holds the flags shared by the root command and 'ask'.
type askOptions struct {
	targets     []string
	noStream    bool
	continueID  string
	system      string
	temperature float64
	maxTokens   int
	timeout     time.Duration
	jsonOutput  bool
}

// NewRootCmd wires the cobra root command.
func NewRootCmd(container *app.Container) *cobra.Command {
	var opts askOptions

	root := &cobra.Command{
		Use:   "multiprompt [prompt]",
		Short: "Send one prompt to several LLMs at once",
		Long: "multiprompt fans a prompt out to every selected provider/model pair, streams the answers side by side " +
			"and keeps the results in a local history database.",
		Args: cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && stdinIsTerminal(cmd.InOrStdin()) {
				return cmd.Help()
			}
			return runAsk(cmd, container, opts, args)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	bindAskFlags(root, &opts)
	// Consumed by Execute before the container is built; declared here for help and parsing.
	root.PersistentFlags().BoolP(flagVerbose, "v", false, "Enable debug logging (or set MULTIPROMPT_DEBUG=1)")
	root.PersistentFlags().String(flagConfig, "", "Config file path (or set MULTIPROMPT_CONFIG)")

	root.AddCommand(newAskCommand(container))
	root.AddCommand(commands.NewConfigCommand(container))
	root.AddCommand(commands.NewDoctorCommand(container))
	root.AddCommand(commands.NewHistoryCommand(container))
	root.AddCommand(commands.NewModelsCommand(container))
	root.AddCommand(commands.NewProvidersCommand(container))
	root.AddCommand(commands.NewServeCommand(container))
	root.AddCommand(commands.NewVersionCommand())
	return root
}

func newAskCommand(container *app.Container) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask [prompt]",
		Short: "Send a prompt to the selected targets (reads stdin when no prompt is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, container, opts, args)
		},
	}
	bindAskFlags(cmd, &opts)
	return cmd
}

func bindAskFlags(cmd *cobra.Command, opts *askOptions) {
	flags := cmd.Flags()
	flags.StringArrayVarP(&opts.targets, "target", "t", nil, "provider/model to query (repeatable, default from config)")
	flags.BoolVar(&opts.noStream, "no-stream", false, "Wait for complete responses instead of streaming")
	flags.StringVar(&opts.continueID, "continue", "", "Continue a history entry (id from 'history list', or \"last\")")
	flags.StringVar(&opts.system, "system", "", "System prompt")
	flags.Float64Var(&opts.temperature, "temperature", 0, "Sampling temperature (default from provider settings)")
	flags.IntVar(&opts.maxTokens, "max-tokens", 0, "Maximum output tokens (default from provider settings)")
	flags.DurationVar(&opts.timeout, "timeout", 0, "Bound the whole submission (default none)")
	flags.BoolVar(&opts.jsonOutput, "json", false, "Print responses and summary as JSON")
}

// runAsk submits the prompt, renders legs as they settle and reports the outcome.
func runAsk(cmd *cobra.Command, container *app.Container, opts askOptions, args []string) error {
	if container.Executor == nil {
		return errors.New("executor unavailable")
	}

	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	targets, err := resolveTargets(container.Config, opts.targets)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	continuation, err := resolveContinuation(ctx, container.Executor, opts.continueID)
	if err != nil {
		return err
	}

	stream := container.Config.Preferences.Stream && !opts.noStream && !opts.jsonOutput
	req := execution.SubmitRequest{
		Prompt:         prompt,
		Targets:        targets,
		Stream:         stream,
		ContinuationOf: continuation,
		Options:        generationOptions(cmd, opts),
	}

	out := cmd.OutOrStdout()
	var (
		events      <-chan domain.Event
		unsubscribe = func() {}
	)
	if stream && container.Events != nil {
		events, unsubscribe = container.Events.Subscribe(domain.EventResponseDelta, domain.EventResponseDone)
	}
	defer unsubscribe()

	sub, err := container.Executor.Begin(ctx, req)
	if err != nil {
		return err
	}

	if stream {
		followStream(container.Executor, sub, events, NewStreamWriter(out))
	} else {
		waitWithSpinner(cmd.ErrOrStderr(), sub, len(targets), !opts.jsonOutput)
	}
	summary, _ := sub.Wait(context.Background())

	entry, ok := container.Executor.Entry(sub.EntryID)
	if !ok {
		return fmt.Errorf("entry %s disappeared before it settled", sub.EntryID)
	}

	switch {
	case opts.jsonOutput:
		if err := RenderJSON(out, entry, sub.ResponseIDs, summary); err != nil {
			return err
		}
	case stream:
		RenderSummary(cmd.ErrOrStderr(), entry, sub.ResponseIDs, summary)
	default:
		RenderResponses(out, entry, sub.ResponseIDs)
		RenderSummary(cmd.ErrOrStderr(), entry, sub.ResponseIDs, summary)
	}

	if summary.Outcome == execution.OutcomeAllFailed {
		return errors.New("every target failed")
	}
	return nil
}

// followStream prints deltas of this submission until it settles.
func followStream(executor *execution.Executor, sub *execution.Submission, events <-chan domain.Event, writer *streamWriter) {
	finish := func(responseID string) {
		entry, ok := executor.Entry(sub.EntryID)
		if !ok {
			return
		}
		if resp, ok := entry.Response(responseID); ok {
			writer.Finish(resp)
		}
	}

loop:
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if evt.EntryID != sub.EntryID {
				continue
			}
			target := domain.Target{ProviderID: evt.ProviderID, ModelID: evt.ModelID}
			switch evt.Type {
			case domain.EventResponseDelta:
				writer.WriteDelta(evt.ResponseID, target, evt.Delta)
			case domain.EventResponseDone:
				finish(evt.ResponseID)
			}
		case <-sub.Done():
			break loop
		}
	}

	for _, id := range sub.ResponseIDs {
		finish(id)
	}
	writer.Done()
}

func waitWithSpinner(out io.Writer, sub *execution.Submission, legs int, show bool) {
	if !show || !isTerminal(out) {
		<-sub.Done()
		return
	}
	spinner := NewSpinner(out, fmt.Sprintf("waiting for %d response(s)", legs))
	spinner.Start()
	<-sub.Done()
	spinner.Stop()
}

func generationOptions(cmd *cobra.Command, opts askOptions) domain.GenerationOptions {
	gen := domain.GenerationOptions{SystemPrompt: opts.system}
	if cmd.Flags().Changed("temperature") {
		gen.Temperature = domain.Float64(opts.temperature)
	}
	if cmd.Flags().Changed("max-tokens") {
		gen.MaxTokens = domain.Int(opts.maxTokens)
	}
	return gen
}

// readPrompt joins args, or reads stdin when there are none or the only arg is "-".
func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	raw, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read prompt from stdin: %w", err)
	}
	prompt := strings.TrimSpace(string(raw))
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	return prompt, nil
}

func resolveTargets(cfg domain.Config, raw []string) ([]domain.Target, error) {
	if len(raw) == 0 {
		targets, err := cfg.GetDefaultTargets()
		if err != nil {
			return nil, err
		}
		if len(targets) == 0 {
			return nil, errors.New("no targets: pass --target provider/model or run 'multiprompt models use'")
		}
		return targets, nil
	}

	targets := make([]domain.Target, 0, len(raw))
	for _, value := range raw {
		target, err := domain.ParseTarget(value)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target)
	}
	return targets, nil
}

// resolveContinuation maps the id shown by 'history list' to the executor's entry id.
func resolveContinuation(ctx context.Context, executor *execution.Executor, raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if err := executor.LoadHistory(ctx, domain.HistoryQuery{Limit: commands.MaxHistoryAnalysisRecords}); err != nil {
		return "", fmt.Errorf("failed to load history: %w", err)
	}

	if raw == continueLast {
		entries := executor.Entries()
		if len(entries) == 0 {
			return "", errors.New("no history to continue")
		}
		return entries[0].ID, nil
	}

	durableID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid --continue %q", raw)
	}
	entryID, ok := executor.EntryIDForDurable(durableID)
	if !ok {
		return "", fmt.Errorf("entry %d not found", durableID)
	}
	return entryID, nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

func stdinIsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}
