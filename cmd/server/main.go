package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:          "civicpulse",
		Short:        "Civic complaint desk, alert escalation and analytics service",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (default: ./config.yaml if present)")

	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, live feed and scheduled sweeps",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "catalog",
		Short: "Validate the configured catalog and print it as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, cat, err := loadCatalog(configPath)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"source":           catalogSource(cfg.Catalog.Path),
				"departments":      cat.Departments(),
				"severity_rules":   cat.Rules(),
				"default_severity": cat.DefaultSeverity(),
				"sla":              slaStrings(cat.SLAPolicy()),
			})
		},
	})

	return root
}

func catalogSource(path string) string {
	if path == "" {
		return "embedded default"
	}
	return path
}
