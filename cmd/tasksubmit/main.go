package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"taskbridge/internal/client"
)

func main() {
	var (
		addr    = flag.String("broker", "localhost:8888", "broker producer endpoint")
		timeout = flag.Duration("timeout", 30*time.Second, "per-task result timeout")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	payloads := flag.Args()
	if len(payloads) == 0 {
		payloads = []string{"1,2,3,4,5", "10,20,30", "100,200,300,400"}
	}

	c, err := client.Dial(*addr)
	if err != nil {
		log.Fatal().Err(err).Msg("connect")
	}
	defer c.Close()

	for _, payload := range payloads {
		result, err := c.Do(payload, *timeout)
		if err != nil {
			log.Error().Err(err).Str("payload", payload).Msg("task failed")
			continue
		}
		log.Info().Str("payload", payload).Str("result", result).Msg("task done")
	}
}
