package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	sipgw "github.com/gbt28181/sipgw"
	"github.com/gbt28181/sipgw/conf"
	"github.com/gbt28181/sipgw/httpapi"
	"github.com/gbt28181/sipgw/mediaport"
	"github.com/gbt28181/sipgw/store"
)

func main() {
	configPath := pflag.StringP("config", "c", "sipgw.yml", "path to the YAML configuration")
	debug := pflag.BoolP("debug", "d", false, "enable debug logging")
	pretty := pflag.Bool("pretty", false, "human readable log output")
	pflag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	if *pretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.StampMicro,
		})
	}

	cfg, err := conf.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("loading configuration failed")
	}

	st, err := store.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("creating store failed")
	}

	var alloc mediaport.Allocator
	if cfg.MediaURL != "" {
		alloc = mediaport.NewClient(cfg.MediaURL)
	} else {
		alloc = &mediaport.Static{IP: cfg.MediaIP, Port: cfg.MediaPort}
	}

	gw := sipgw.New(cfg, st, alloc)
	sipgw.RegisterStoreMetrics(st)

	api := httpapi.New(gw, st)
	go func() {
		if err := api.Run(cfg.HTTPAddr()); err != nil {
			log.Fatal().Err(err).Msg("http api failed")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Info().
		Str("sip_id", cfg.SipID).
		Str("domain", cfg.Domain).
		Str("my_ip", cfg.MyIP).
		Msg("gateway starting")

	if err := gw.ListenAndServe(ctx); err != nil {
		log.Fatal().Err(err).Msg("sip transport failed")
	}
	log.Info().Msg("gateway stopped")
}
