package cmd

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/vzahanych/area-insight/internal/config"
	"github.com/vzahanych/area-insight/internal/insight"
)

func lookupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lookup",
		Short: "Run a single lookup and print the result as JSON",
	}

	cmd.AddCommand(lookupWeatherCmd(), lookupIncidentsCmd(), lookupRouteCmd(), lookupLocationCmd())
	return cmd
}

func lookupWeatherCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "weather POSTCODE",
		Short: "Daily forecast for a postcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) (interface{}, error) {
				return a.insight.GetWeather(cmd.Context(), args[0])
			})
		},
	}
}

func lookupIncidentsCmd() *cobra.Command {
	var category, month string
	cmd := &cobra.Command{
		Use:   "incidents POSTCODE",
		Short: "Street-level incidents near a postcode",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) (interface{}, error) {
				return a.insight.GetIncidents(cmd.Context(), category, args[0], month)
			})
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "incident category (default: all-crime)")
	cmd.Flags().StringVar(&month, "month", "", "month as YYYY-MM (default: latest available)")
	return cmd
}

func lookupRouteCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "route START END",
		Short: "Route between two postcodes",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) (interface{}, error) {
				return a.insight.GetRoute(cmd.Context(), mode, args[0], args[1])
			})
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "driving", "travel mode")
	return cmd
}

func lookupLocationCmd() *cobra.Command {
	var withIncidents bool
	cmd := &cobra.Command{
		Use:   "location ID",
		Short: "Combined info for a stored location",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(a *app) (interface{}, error) {
				return a.insight.GetCombinedLocationInfoByID(cmd.Context(), args[0], insight.CombinedOptions{IncludeIncidents: withIncidents})
			})
		},
	}
	cmd.Flags().BoolVar(&withIncidents, "incidents", false, "include nearby incidents")
	return cmd
}

func withApp(cmd *cobra.Command, run func(a *app) (interface{}, error)) error {
	a, err := buildApp(cmd.Context(), config.GetConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := run(a)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
