package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/becomeliminal/affect-memory/memory"
)

func init() {
	store := &cobra.Command{
		Use:   "store <text>",
		Short: "Store a memory",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runStore,
	}
	store.Flags().Float32P("importance", "i", memory.DefaultImportance, "Importance in [0,1]")
	store.Flags().StringP("kind", "k", string(memory.KindRaw), "raw, summary or epiphany")
	store.Flags().String("at", "", "Timestamp (RFC 3339); default now")
	store.Flags().StringToString("emotion", nil, "Named emotion intensities, e.g. joy=0.8")

	recall := &cobra.Command{
		Use:   "recall <query>",
		Short: "Recall memories relevant to a query",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRecall,
	}
	recall.Flags().IntP("top", "k", 0, "Number of results (default AFFECT_TOP_K)")
	recall.Flags().Bool("prompt", false, "Print the prompt block instead of JSON")

	scan := &cobra.Command{
		Use:   "scan",
		Short: "List the most recent memories",
		RunE:  runScan,
	}
	scan.Flags().IntP("limit", "l", 20, "Maximum results")
	scan.Flags().StringP("kind", "k", "", "Only this kind")

	rm := &cobra.Command{
		Use:   "rm <id>...",
		Short: "Delete memories by id",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runRm,
	}

	RootCmd.AddCommand(store, recall, scan, rm)
}

func runStore(cmd *cobra.Command, args []string) error {
	importance, _ := cmd.Flags().GetFloat32("importance")
	kind, _ := cmd.Flags().GetString("kind")
	at, _ := cmd.Flags().GetString("at")
	emotionFlags, _ := cmd.Flags().GetStringToString("emotion")

	meta := memory.StoreMetadata{
		Importance: &importance,
		Kind:       memory.Kind(kind),
	}
	if at != "" {
		ts, err := time.Parse(time.RFC3339, at)
		if err != nil {
			return fmt.Errorf("--at: %w", err)
		}
		meta.Timestamp = ts
	}
	if len(emotionFlags) > 0 {
		meta.Emotions = make(map[string]float64, len(emotionFlags))
		for name, v := range emotionFlags {
			var f float64
			if _, err := fmt.Sscan(v, &f); err != nil {
				return fmt.Errorf("--emotion %s: %w", name, err)
			}
			meta.Emotions[name] = f
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	rec, err := e.memory.Store(cmd.Context(), strings.Join(args, " "), meta)
	if err != nil {
		return err
	}
	rec.Vector = nil
	return printJSON(cmd, rec)
}

func runRecall(cmd *cobra.Command, args []string) error {
	top, _ := cmd.Flags().GetInt("top")
	asPrompt, _ := cmd.Flags().GetBool("prompt")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	hits, err := e.memory.Recall(cmd.Context(), strings.Join(args, " "), memory.RecallOptions{TopK: top})
	if err != nil {
		return err
	}
	if asPrompt {
		_, err := fmt.Fprint(cmd.OutOrStdout(), memory.FormatForPrompt(hits, 0))
		return err
	}
	for i := range hits {
		hits[i].Vector = nil
	}
	return printJSON(cmd, hits)
}

func runScan(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	kind, _ := cmd.Flags().GetString("kind")
	if kind != "" && !memory.Kind(kind).Valid() {
		return fmt.Errorf("unknown kind %q", kind)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	recs, err := e.memory.Scan(cmd.Context(), limit, memory.Kind(kind))
	if err != nil {
		return err
	}
	for i := range recs {
		recs[i].Vector = nil
	}
	return printJSON(cmd, recs)
}

func runRm(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	e, err := openEngine(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.memory.Delete(cmd.Context(), args...); err != nil {
		return err
	}
	return printJSON(cmd, map[string]any{"ok": true, "ids": args})
}
