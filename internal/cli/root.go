package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// NewRootCommand builds the complete command tree.
func NewRootCommand(deps Dependencies) *cobra.Command {
	version := resolvedVersion(deps.Version)
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "circlemap",
		Short:         "Look up places, size up radii and browse saved circle history.",
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			showVersion, _ := cmd.Flags().GetBool("version")
			if showVersion {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version)
				return errVersionShown
			}
			return cmd.Help()
		},
	}
	root.Flags().BoolP("version", "v", false, "Show CLI version and exit.")
	addGlobalFlags(root.PersistentFlags(), flags)
	root.SetHelpCommand(&cobra.Command{Hidden: true})

	root.AddCommand(newResolveCommand(deps, flags))
	root.AddCommand(newReverseCommand(deps, flags))
	root.AddCommand(newEstimateCommand(deps, flags))
	root.AddCommand(newHistoryCommand(deps, flags))

	return root
}

type globalFlags struct {
	Format  string
	Timeout time.Duration
}

func addGlobalFlags(fs *pflag.FlagSet, flags *globalFlags) {
	fs.StringVar(&flags.Format, "format", "table", "Output format: table, json, or yaml.")
	fs.DurationVar(&flags.Timeout, "timeout", 15*time.Second, "Deadline for upstream lookups.")
}

// result is what a command produces: a machine payload and its table form.
type result struct {
	data  any
	table string
}

// runCommand executes fn under the global timeout and writes its result in
// the selected format. Application errors are rendered in the same format.
func runCommand(cmd *cobra.Command, flags *globalFlags, fn func(ctx context.Context) (result, error)) error {
	format, err := ParseFormat(flags.Format)
	if err != nil {
		_, _ = fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
		return &exitError{code: ExitUsage}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if flags.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flags.Timeout)
		defer cancel()
	}

	res, err := fn(ctx)
	if err != nil {
		return emitError(cmd, format, err)
	}

	if format == FormatTable {
		return writeLine(cmd.OutOrStdout(), res.table)
	}
	rendered, err := renderPayload(buildEnvelope(cmd.CommandPath(), res.data, nil, time.Now()), format)
	if err != nil {
		return err
	}
	return writeLine(cmd.OutOrStdout(), rendered)
}

func emitError(cmd *cobra.Command, format Format, err error) error {
	code := exitCodeFor(err)
	if format == FormatTable {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", errorMessage(err))
		return &exitError{code: code}
	}
	payload := map[string]any{
		"code":    string(errorCode(err)),
		"message": errorMessage(err),
	}
	rendered, renderErr := renderPayload(buildEnvelope(cmd.CommandPath(), nil, payload, time.Now()), format)
	if renderErr != nil {
		return renderErr
	}
	if writeErr := writeLine(cmd.OutOrStdout(), rendered); writeErr != nil {
		return writeErr
	}
	return &exitError{code: code}
}
