package cmd

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ducminhle1904/orb-breakout-bot/internal/broker"
	"github.com/ducminhle1904/orb-breakout-bot/internal/config"
	"github.com/ducminhle1904/orb-breakout-bot/internal/engine"
	apperrors "github.com/ducminhle1904/orb-breakout-bot/internal/errors"
	"github.com/ducminhle1904/orb-breakout-bot/internal/exchange/bybit"
	"github.com/ducminhle1904/orb-breakout-bot/internal/exchange/paper"
	"github.com/ducminhle1904/orb-breakout-bot/internal/feed"
	"github.com/ducminhle1904/orb-breakout-bot/internal/journal"
	"github.com/ducminhle1904/orb-breakout-bot/internal/monitoring"
	"github.com/ducminhle1904/orb-breakout-bot/internal/session"
)

var (
	cooldown bool
	wsURL    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the live trading engine",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		clock, err := session.NewClock(cfg.Session)
		if err != nil {
			return err
		}

		brk, err := buildBroker(cfg)
		if err != nil {
			return err
		}

		jrnl, err := openJournal(cfg)
		if err != nil {
			return err
		}
		defer jrnl.Close()

		health := monitoring.NewHealthChecker()
		if cfg.Monitoring.Enabled {
			go serveMonitoring(cfg.Monitoring.ListenAddr, health)
		}

		priceFeed := feed.NewWebSocketFeed(wsURL, cfg.Instrument.Symbol)

		eng := engine.New(engine.Options{
			Config:   cfg,
			Clock:    clock,
			Broker:   brk,
			Feed:     priceFeed,
			Journal:  jrnl,
			Health:   health,
			Cooldown: cooldown,
		})

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log.Info().Str("symbol", cfg.Instrument.Symbol).Str("broker", cfg.Broker.Name).
			Msg("Starting ORB engine")
		return eng.Run(ctx)
	},
}

func init() {
	runCmd.Flags().BoolVar(&cooldown, "cooldown", false, "force gated-out for the next session (loss-streak lockout)")
	runCmd.Flags().StringVar(&wsURL, "ws-url", "wss://stream.bybit.com/v5/public/linear", "ticker stream URL")
	rootCmd.AddCommand(runCmd)
}

func buildBroker(cfg *config.Config) (broker.Broker, error) {
	switch cfg.Broker.Name {
	case "bybit":
		bcfg, err := bybit.ConfigFromEnv(cfg.Broker.Category, cfg.Broker.Demo, cfg.Broker.MinStopDistance)
		if err != nil {
			return nil, err
		}
		client := bybit.NewClient(bcfg)
		log.Info().Str("environment", client.Environment()).Msg("Bybit broker ready")
		return client, nil
	case "paper":
		return paper.New(broker.Constraints{
			TickSize:        cfg.Instrument.Point,
			MinStopDistance: cfg.Broker.MinStopDistance,
			LotStep:         0.01,
			MinVolume:       0.01,
		}), nil
	default:
		return nil, apperrors.NewConfigurationError("cli", "unknown broker "+cfg.Broker.Name)
	}
}

func openJournal(cfg *config.Config) (journal.Journal, error) {
	if !cfg.Journal.Enabled {
		return journal.Nop{}, nil
	}
	return journal.NewSQLite(cfg.Journal.Path)
}

func serveMonitoring(addr string, health *monitoring.HealthChecker) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())
	mux.Handle("/health", health)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error().Err(err).Msg("Monitoring server stopped")
	}
}
