package main

import (
	"os"

	"github.com/rs/zerolog/log"

	"github.com/supportdesk/conversation-engine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("supportd exited with error")
		os.Exit(1)
	}
}
