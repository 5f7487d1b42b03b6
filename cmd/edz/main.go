package main

import (
	"os"
	"time"

	"github.com/beam-cloud/edz/pkg/commands"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if err := commands.NewRootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("edz failed")
		os.Exit(1)
	}
}
