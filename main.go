package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/yixiaowang2001/game-sage-agent/cmd"
	_ "github.com/yixiaowang2001/game-sage-agent/pkg/logger/autoload"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("gamesage failed")
		os.Exit(1)
	}
}
