package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	dreamCmd := &cobra.Command{
		Use:   "dream",
		Short: "Run one consolidation pass now",
		RunE:  runDream,
	}
	dreamCmd.Flags().IntP("limit", "l", 0, "Most recent raw memories to consider (default AFFECT_DREAM_LIMIT)")

	migrate := &cobra.Command{
		Use:   "migrate",
		Short: "Add timestamp prefixes to memories written without one",
		RunE:  runMigrate,
	}
	migrate.Flags().IntP("limit", "l", 10000, "Maximum memories to inspect")

	RootCmd.AddCommand(dreamCmd, migrate)
}

func runDream(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if limit <= 0 {
		limit = cfg.DreamLimit
	}
	e, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	sum, err := e.dreamer.Run(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return printJSON(cmd, sum)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	n, err := e.dreamer.Backfill(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return printJSON(cmd, map[string]int{"rewritten": n})
}
