package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
	"github.com/JakeFAU/page-analyzer/internal/server"
)

// newCheckCmd fetches one page and prints what a stored check would contain,
// without touching the database.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check <url>",
		Short: "Fetches a page once and prints its SEO fields as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd.Context())
			if err != nil {
				return err
			}
			name, err := analyzer.Normalize(args[0])
			if err != nil {
				return err
			}
			logger, err := server.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			checker := server.NewChecker(cfg, nil, nil, logger.Named("checker"))
			result := checker.Inspect(cmd.Context(), name)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			if !result.Connected {
				return fmt.Errorf("could not connect to %s", name)
			}
			return nil
		},
	}
}
