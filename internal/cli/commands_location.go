package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"circlemap/internal/area"
	"circlemap/internal/types"
)

type locationView struct {
	Query   string  `json:"query,omitempty" yaml:"query,omitempty"`
	Lat     float64 `json:"lat" yaml:"lat"`
	Lon     float64 `json:"lon" yaml:"lon"`
	Address string  `json:"address" yaml:"address"`
}

func newResolveCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <query>",
		Short: "Resolve a place name or address to coordinates.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runCommand(cmd, flags, func(ctx context.Context) (result, error) {
				res, err := deps.Resolver.Resolve(ctx, query)
				if err != nil {
					return result{}, err
				}
				view := locationView{Query: query, Lat: res.Point.Lat, Lon: res.Point.Lon, Address: res.Address}
				return result{data: view, table: locationTable(view)}, nil
			})
		},
	}
}

func newReverseCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	var lat, lon float64
	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Look up the address at a coordinate.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, flags, func(ctx context.Context) (result, error) {
				p := types.Point{Lat: lat, Lon: lon}
				if err := types.ValidatePoint(p); err != nil {
					return result{}, err
				}
				address, err := deps.Resolver.Reverse(ctx, p)
				if err != nil {
					return result{}, err
				}
				view := locationView{Lat: lat, Lon: lon, Address: address}
				return result{data: view, table: locationTable(view)}, nil
			})
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude in decimal degrees.")
	cmd.Flags().Float64Var(&lon, "lon", 0, "Longitude in decimal degrees.")
	_ = cmd.MarkFlagRequired("lat")
	_ = cmd.MarkFlagRequired("lon")
	return cmd
}

type estimateView struct {
	RadiusKm    float64 `json:"radius_km" yaml:"radius_km"`
	AreaKm2     float64 `json:"area_km2" yaml:"area_km2"`
	Zoom        int     `json:"zoom" yaml:"zoom"`
	WalkMinutes int     `json:"walk_minutes" yaml:"walk_minutes"`
	RunMinutes  int     `json:"run_minutes" yaml:"run_minutes"`
	BikeMinutes int     `json:"bike_minutes" yaml:"bike_minutes"`
	WalkKcal    int     `json:"walk_kcal" yaml:"walk_kcal"`
	RunKcal     int     `json:"run_kcal" yaml:"run_kcal"`
}

func newEstimateCommand(deps Dependencies, flags *globalFlags) *cobra.Command {
	var radius float64
	cmd := &cobra.Command{
		Use:   "estimate",
		Short: "Show area, map zoom and travel estimates for a radius.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCommand(cmd, flags, func(context.Context) (result, error) {
				if err := types.ValidateRadius(radius); err != nil {
					return result{}, err
				}
				est := area.Estimate(radius, deps.Rates)
				view := estimateView{
					RadiusKm:    radius,
					AreaKm2:     area.AreaKm2(radius),
					Zoom:        area.ZoomFor(radius),
					WalkMinutes: est.WalkMinutes,
					RunMinutes:  est.RunMinutes,
					BikeMinutes: est.BikeMinutes,
					WalkKcal:    est.WalkKcal,
					RunKcal:     est.RunKcal,
				}
				return result{data: view, table: estimateTable(view)}, nil
			})
		},
	}
	cmd.Flags().Float64Var(&radius, "radius", 0, "Radius in kilometers.")
	_ = cmd.MarkFlagRequired("radius")
	return cmd
}

func locationTable(v locationView) string {
	rows := [][]string{
		{"lat", formatFloat(v.Lat)},
		{"lon", formatFloat(v.Lon)},
		{"address", v.Address},
	}
	if v.Query != "" {
		rows = append([][]string{{"query", v.Query}}, rows...)
	}
	return renderTable("", nil, rows)
}

func estimateTable(v estimateView) string {
	return renderTable(fmt.Sprintf("radius %s km", formatFloat(v.RadiusKm)), []string{"metric", "value"}, [][]string{
		{"area_km2", strconv.FormatFloat(v.AreaKm2, 'f', 2, 64)},
		{"zoom", strconv.Itoa(v.Zoom)},
		{"walk", fmt.Sprintf("%d min / %d kcal", v.WalkMinutes, v.WalkKcal)},
		{"run", fmt.Sprintf("%d min / %d kcal", v.RunMinutes, v.RunKcal)},
		{"bike", fmt.Sprintf("%d min", v.BikeMinutes)},
	})
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func errorCode(err error) types.ErrorCode {
	if code := types.CodeOf(err); code != "" {
		return code
	}
	return types.ErrCodeInternalUnexpected
}

func errorMessage(err error) string {
	var appErr *types.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
