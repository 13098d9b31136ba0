package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"taskbridge/internal/executor"
)

func main() {
	var (
		addr = flag.String("broker", "localhost:8889", "broker executor endpoint")
		id   = flag.String("id", "", "executor id (generated when empty)")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	executorID := *id
	if executorID == "" {
		executorID = "exec_" + uuid.NewString()[:8]
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		log.Info().Msg("shutting down")
		cancel()
	}()

	r := executor.NewRunner(*addr, executorID, executor.Sum{})
	if err := r.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("executor stopped")
	}
}
