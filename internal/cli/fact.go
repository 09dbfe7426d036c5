package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/affect-memory/facts"
)

func init() {
	fact := &cobra.Command{
		Use:   "fact",
		Short: "Read and write the fact ledger",
	}

	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Record a fact",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runFactSet,
	}
	set.Flags().String("provenance", string(facts.ProvenanceUser), "user or dream")

	get := &cobra.Command{
		Use:   "get [key]",
		Short: "Show one fact, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runFactGet,
	}

	relevant := &cobra.Command{
		Use:   "relevant <query>",
		Short: "Show the facts relevant to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runFactRelevant,
	}

	fact.AddCommand(set, get, relevant)
	RootCmd.AddCommand(fact)
}

func openLedger(cmd *cobra.Command) (*facts.Ledger, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.FactsPath == "" {
		return nil, fmt.Errorf("no fact ledger configured; set AFFECT_FACTS_PATH or --facts")
	}
	return facts.Open(cmd.Context(), cfg.FactsPath)
}

func runFactSet(cmd *cobra.Command, args []string) error {
	prov, _ := cmd.Flags().GetString("provenance")

	l, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer l.Close()

	key, value := args[0], strings.Join(args[1:], " ")
	written := l.Write(cmd.Context(), key, value, facts.ParseProvenance(prov))
	return printJSON(cmd, map[string]any{"key": key, "written": written})
}

func runFactGet(cmd *cobra.Command, args []string) error {
	l, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer l.Close()

	if len(args) == 0 {
		return printJSON(cmd, l.All())
	}
	v, ok := l.Get(args[0])
	if !ok {
		return fmt.Errorf("fact %q not found", args[0])
	}
	return printJSON(cmd, map[string]string{args[0]: v})
}

func runFactRelevant(cmd *cobra.Command, args []string) error {
	l, err := openLedger(cmd)
	if err != nil {
		return err
	}
	defer l.Close()

	return printJSON(cmd, l.Relevant(strings.Join(args, " ")))
}
