package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ducminhle1904/orb-breakout-bot/internal/broker"
	"github.com/ducminhle1904/orb-breakout-bot/internal/config"
	"github.com/ducminhle1904/orb-breakout-bot/internal/engine"
	"github.com/ducminhle1904/orb-breakout-bot/internal/exchange/paper"
	"github.com/ducminhle1904/orb-breakout-bot/internal/feed"
	"github.com/ducminhle1904/orb-breakout-bot/internal/session"
)

var replayFile string

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay recorded ticks through the engine against a paper broker",
	Long: `replay runs the full session state machine over a CSV tick recording
(timestamp,bid,ask per row) and prints every session outcome. Orders go to an
in-memory paper broker, so it is safe to run against any recording.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configFile)
		if err != nil {
			return err
		}

		clock, err := session.NewClock(cfg.Session)
		if err != nil {
			return err
		}

		jrnl, err := openJournal(cfg)
		if err != nil {
			return err
		}
		defer jrnl.Close()

		brk := paper.New(broker.Constraints{
			TickSize:        cfg.Instrument.Point,
			MinStopDistance: cfg.Broker.MinStopDistance,
			LotStep:         0.01,
			MinVolume:       0.01,
		})

		eng := engine.New(engine.Options{
			Config:   cfg,
			Clock:    clock,
			Broker:   brk,
			Feed:     feed.NewReplayFeed(replayFile, cfg.Instrument.Symbol),
			Journal:  jrnl,
			Cooldown: cooldown,
		})

		log.Info().Str("file", replayFile).Str("symbol", cfg.Instrument.Symbol).
			Msg("Replaying recorded ticks")
		if err := eng.Run(context.Background()); err != nil {
			return err
		}

		for _, order := range brk.Orders() {
			log.Info().Str("tag", order.ClientTag).Str("side", order.Direction.String()).
				Float64("entry", order.Entry).Float64("sl", order.StopLoss).
				Float64("tp", order.TakeProfit).Float64("volume", order.Volume).
				Msg("Paper order")
		}
		return nil
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayFile, "file", "", "CSV tick recording to replay")
	replayCmd.MarkFlagRequired("file")
	replayCmd.Flags().BoolVar(&cooldown, "cooldown", false, "force gated-out for the replayed sessions")
	rootCmd.AddCommand(replayCmd)
}
