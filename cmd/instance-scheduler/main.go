package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/niroliyanage/instance-scheduler/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(cli.ExitGeneralError)
	}
}
