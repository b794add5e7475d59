// Command gphotos walks a Google Photos library from the command line and
// prints one JSON record per line.
package main

import (
	"os"

	"github.com/rs/zerolog/log"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		log.Error().Err(err).Msg("gphotos failed")
		os.Exit(1)
	}
}
