// Package cli implements the affectd commands.
package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/affect-memory/internal/config"
	"github.com/becomeliminal/affect-memory/internal/logger"
)

var (
	logLevel  string
	storePath string
	factsPath string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "affectd",
	Short: "Affective long-term memory for conversational agents",
	Long: "affectd stores an agent's memories with their emotional context, recalls them by meaning and mood, " +
		"and consolidates them while the agent is idle. Settings come from AFFECT_* environment variables.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides AFFECT_LOG_LEVEL)")
	RootCmd.PersistentFlags().StringVar(&storePath, "store", "", "chromem directory (overrides AFFECT_STORE_PATH)")
	RootCmd.PersistentFlags().StringVar(&factsPath, "facts", "", "Fact ledger database (overrides AFFECT_FACTS_PATH)")
}

// loadConfig reads the environment, applies flag overrides and sets up
// logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if storePath != "" {
		cfg.StorePath = storePath
	}
	if factsPath != "" {
		cfg.FactsPath = factsPath
	}
	logger.New("affectd", cfg.LogLevel, cfg.LogPretty)
	return cfg, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
