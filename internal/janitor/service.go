// Package janitor runs the broker's scheduled maintenance: sweeping ledger
// entries that no result will ever resolve, and pruning old history journal
// rows.
package janitor

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"taskbridge/internal/broker"
	"taskbridge/internal/history"
	"taskbridge/internal/protocol"
)

type Service struct {
	cron   *cron.Cron
	ledger *broker.Ledger
	repo   history.Repository

	ledgerTTL time.Duration
	retention time.Duration
}

func NewService(led *broker.Ledger, repo history.Repository, ledgerTTL, retention time.Duration) *Service {
	return &Service{
		cron:      cron.New(),
		ledger:    led,
		repo:      repo,
		ledgerTTL: ledgerTTL,
		retention: retention,
	}
}

// Start schedules the jobs and begins running them. Spec syntax is the
// standard five-field cron form plus descriptors like "@every 1m".
func (s *Service) Start(sweepSpec, pruneSpec string) error {
	if _, err := s.cron.AddFunc(sweepSpec, s.sweepLedger); err != nil {
		return err
	}
	if s.repo != nil {
		if _, err := s.cron.AddFunc(pruneSpec, s.pruneHistory); err != nil {
			return err
		}
	}
	s.cron.Start()
	log.Info().Str("sweep", sweepSpec).Str("prune", pruneSpec).Msg("janitor started")
	return nil
}

// Stop halts scheduling and waits for a running job to finish.
func (s *Service) Stop() {
	<-s.cron.Stop().Done()
}

// sweepLedger drops pending entries older than the TTL. Their producers are
// told explicitly instead of waiting forever on a result that will not come.
func (s *Service) sweepLedger() {
	swept := s.ledger.Sweep(s.ledgerTTL, time.Now())
	if len(swept) == 0 {
		return
	}
	for _, e := range swept {
		line := protocol.Encode(protocol.Message{Kind: protocol.KindResult, ID: e.TaskID, Body: "ERROR: task expired"})
		if err := e.Owner.Send(line); err != nil {
			log.Debug().Err(err).Str("task_id", e.TaskID).Msg("could not notify producer of expired task")
		}
	}
	log.Warn().Int("swept", len(swept)).Dur("ttl", s.ledgerTTL).Msg("swept expired ledger entries")
}

func (s *Service) pruneHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := s.repo.Prune(ctx, time.Now().Add(-s.retention))
	if err != nil {
		log.Error().Err(err).Msg("history prune failed")
		return
	}
	if n > 0 {
		log.Info().Int("pruned", n).Msg("pruned history journal")
	}
}

// ValidateSpec checks a cron spec the same way the scheduler will parse it.
func ValidateSpec(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}
