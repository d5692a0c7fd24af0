package cli

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"circlemap/internal/history"
	"circlemap/internal/types"
)

func newHistoryCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse and export committed circles.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newHistoryRecentCommand(deps, flags))
	cmd.AddCommand(newHistoryLatestCommand(deps, flags))
	cmd.AddCommand(newHistoryExportCommand(deps, flags))
	return cmd
}

func newHistoryRecentCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List recently committed addresses, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, flags, func(ctx context.Context) (result, error) {
				if limit < 1 || limit > history.MaxRecentLimit {
					return result{}, types.NewAppError(types.ErrCodeValidationInvalidLimit,
						fmt.Sprintf("limit must be between 1 and %d", history.MaxRecentLimit), nil)
				}
				addrs, err := deps.History.ListRecentAddresses(ctx, limit)
				if err != nil {
					return result{}, err
				}
				rows := make([][]string, 0, len(addrs))
				for i, a := range addrs {
					rows = append(rows, []string{strconv.Itoa(i + 1), a})
				}
				table := "no history yet"
				if len(rows) > 0 {
					table = renderTable("", []string{"#", "address"}, rows)
				}
				return result{data: map[string]any{"addresses": addrs}, table: table}, nil
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", history.DefaultRecentLimit, "Maximum number of addresses.")
	return cmd
}

type snapshotView struct {
	Nickname string                     `json:"nickname" yaml:"nickname"`
	Address  string                     `json:"address" yaml:"address"`
	Lat      float64                    `json:"lat" yaml:"lat"`
	Lon      float64                    `json:"lon" yaml:"lon"`
	RadiiKm  [types.RadiusCount]float64 `json:"radii_km" yaml:"radii_km,flow"`
	SavedAt  time.Time                  `json:"saved_at" yaml:"saved_at"`
}

func newHistoryLatestCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "latest <nickname>",
		Short: "Show the most recent circle committed under a nickname.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCommand(cmd, flags, func(ctx context.Context) (result, error) {
				snap, err := deps.History.RestoreLatest(ctx, args[0])
				if err != nil {
					return result{}, err
				}
				view := snapshotView{
					Nickname: snap.Nickname,
					Address:  snap.Address,
					Lat:      snap.Center.Lat,
					Lon:      snap.Center.Lon,
					RadiiKm:  snap.RadiiKm,
					SavedAt:  snap.SavedAt.UTC(),
				}
				table := renderTable("", nil, [][]string{
					{"nickname", view.Nickname},
					{"address", view.Address},
					{"center", formatFloat(view.Lat) + ", " + formatFloat(view.Lon)},
					{"radii_km", fmt.Sprintf("%s / %s / %s", formatFloat(view.RadiiKm[0]), formatFloat(view.RadiiKm[1]), formatFloat(view.RadiiKm[2]))},
					{"saved_at", view.SavedAt.Format(time.RFC3339)},
				})
				return result{data: view, table: table}, nil
			})
		},
	}
}

func newHistoryExportCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	var nickname, outputPath string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write committed circles to a gzipped CSV file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, flags, func(ctx context.Context) (result, error) {
				n, err := exportToFile(ctx, deps.History, outputPath, nickname)
				if err != nil {
					return result{}, err
				}
				data := map[string]any{"path": outputPath, "records": n}
				return result{data: data, table: fmt.Sprintf("wrote %d records to %s", n, outputPath)}, nil
			})
		},
	}
	cmd.Flags().StringVar(&nickname, "nickname", "", "Only export circles committed under this nickname.")
	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination file, for example history.csv.gz.")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

// exportToFile removes a partially written file when the export fails.
func exportToFile(ctx context.Context, h HistoryReader, path, nickname string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create export file: %w", err)
	}
	n, err := h.Export(ctx, f, nickname)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close export file: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}
