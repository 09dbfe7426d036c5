package cli

import (
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/becomeliminal/affect-memory/dream"
	"github.com/becomeliminal/affect-memory/server"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the memory engine over WebSocket and dream while idle",
		RunE:  runServe,
	}
	cmd.Flags().String("addr", "", "HTTP address (overrides AFFECT_HTTP_ADDR)")
	cmd.Flags().String("grpc-addr", "", "gRPC health address (overrides AFFECT_GRPC_ADDR)")
	cmd.Flags().Bool("no-dream", false, "Disable background consolidation")
	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
		cfg.HTTPAddr = addr
	}
	if addr, _ := cmd.Flags().GetString("grpc-addr"); addr != "" {
		cfg.GRPCAddr = addr
	}
	noDream, _ := cmd.Flags().GetBool("no-dream")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e, err := openEngine(ctx, cfg)
	if err != nil {
		return err
	}
	defer e.Close()

	var scheduler *dream.Scheduler
	if !noDream {
		// No drive state is wired in here, so the agent always counts as idle.
		scheduler = dream.NewScheduler(e.dreamer, nil, cfg.Scheduler())
		scheduler.OnDone = func(sum dream.Summary, err error) {
			if err != nil {
				return
			}
			log.Info().
				Str("run", sum.RunID).
				Int("forgotten", sum.Forgotten).
				Int("compressed", sum.Compressed).
				Int("kept", sum.Kept).
				Dur("took", sum.Duration).
				Msg("dream finished")
		}
	}

	srv, err := server.New(server.Config{
		Memory:     e.memory,
		Dreamer:    e.dreamer,
		Scheduler:  scheduler,
		Facts:      e.facts,
		GRPCAddr:   cfg.GRPCAddr,
		DreamLimit: cfg.DreamLimit,
	})
	if err != nil {
		return err
	}

	log.Info().
		Str("store", cfg.StoreBackend).
		Str("embedder", cfg.EmbedProvider).
		Str("summarizer", cfg.SummarizerProvider).
		Int("dims", cfg.Dimensions).
		Bool("available", e.memory.Available()).
		Msg("affectd starting")
	return srv.Run(ctx, cfg.HTTPAddr)
}
