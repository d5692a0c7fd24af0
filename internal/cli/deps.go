// Package cli implements the circlemap command-line client: location lookups,
// radius estimates and history queries against the same services the API
// uses.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"

	"circlemap/internal/area"
	"circlemap/internal/geocode"
	"circlemap/internal/types"
)

var (
	unknownCommandPattern = regexp.MustCompile(`unknown command "([^"]+)"`)
	// Argument and flag errors raised by cobra before RunE.
	usageErrorPattern = regexp.MustCompile(`^(required flag|unknown (shorthand )?flag|invalid argument|flag needs an argument|accepts |requires at least)`)
)

// LocationResolver resolves place names and coordinates.
type LocationResolver interface {
	Resolve(ctx context.Context, query string) (geocode.Resolution, error)
	Reverse(ctx context.Context, p types.Point) (string, error)
}

// HistoryReader reads the committed history.
type HistoryReader interface {
	ListRecentAddresses(ctx context.Context, limit int) ([]string, error)
	RestoreLatest(ctx context.Context, nickname string) (types.Snapshot, error)
	Export(ctx context.Context, w io.Writer, nickname string) (int, error)
}

// Dependencies wires runtime services.
type Dependencies struct {
	Resolver LocationResolver
	History  HistoryReader
	Rates    area.Rates
	Version  string
}

// Exit codes.
const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitUsage    = 2
	ExitNotFound = 3
)

var errVersionShown = fmt.Errorf("version shown")

// Execute runs the CLI with injected dependencies and returns the exit code.
func Execute(ctx context.Context, args []string, deps Dependencies, stdout io.Writer, stderr io.Writer) int {
	cmd := NewRootCommand(deps)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(ctx)
	if err == nil || err == errVersionShown {
		return ExitOK
	}
	var controlled *exitError
	if errors.As(err, &controlled) {
		return controlled.code
	}

	if matches := unknownCommandPattern.FindStringSubmatch(err.Error()); len(matches) > 1 {
		_, _ = fmt.Fprintf(stderr, "No such command '%s'\n", matches[1])
		return ExitUsage
	}

	msg := err.Error()
	if msg != "" {
		_, _ = fmt.Fprintln(stderr, msg)
	}
	if usageErrorPattern.MatchString(msg) {
		return ExitUsage
	}
	return ExitFailure
}

// exitError carries an exit code for an error that was already reported.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return ""
}

// exitCodeFor maps an application error to a process exit code.
func exitCodeFor(err error) int {
	code := types.CodeOf(err)
	switch code.HTTPStatus() {
	case 400:
		return ExitUsage
	case 404:
		return ExitNotFound
	default:
		return ExitFailure
	}
}
