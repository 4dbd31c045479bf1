package cli

import (
	"context"
	"io"

	"github.com/spf13/pflag"

	"github.com/doeshing/multiprompt/internal/app"
)

const (
	flagVerbose = "verbose"
	flagConfig  = "config"
)

// Execute builds the container from the global flags, then runs the command tree.
// The container has to exist before cobra parses the rest of the command line,
// so --verbose and --config are read in a first lenient pass.
func Execute(ctx context.Context, args []string, opts app.Options) error {
	opts = applyGlobalFlags(args, opts)

	container, err := app.BuildContainer(ctx, opts)
	if err != nil {
		return err
	}
	defer container.Close()

	root := NewRootCmd(container)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// applyGlobalFlags overlays --verbose and --config on opts. Every other flag and
// argument is ignored here and left to cobra.
func applyGlobalFlags(args []string, opts app.Options) app.Options {
	fs := pflag.NewFlagSet("global", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	verbose := fs.BoolP(flagVerbose, "v", false, "")
	configPath := fs.String(flagConfig, "", "")
	// Help and malformed flags are reported by cobra on the second pass.
	_ = fs.Parse(args)

	if *verbose {
		opts.Verbose = true
	}
	if *configPath != "" {
		opts.ConfigPath = *configPath
	}
	return opts
}
