// Package broker implements the task-distribution core: it accepts producer
// connections on one listener and executor connections on another, routes
// each admitted task to an idle executor under round-robin rotation, and
// relays the executor's result back to the originating producer.
package broker

import (
	"context"
	"net"

	"github.com/rs/zerolog/log"

	"taskbridge/internal/config"
)

// Server owns the two listeners and the shared broker state. Sessions get the
// registry, ledger, and dispatcher injected; nothing is ambient.
type Server struct {
	cfg        config.Config
	registry   *Registry
	ledger     *Ledger
	dispatcher *Dispatcher
	journal    Recorder
	metrics    *Metrics

	ready        chan struct{}
	producerAddr string
	executorAddr string
}

func NewServer(cfg config.Config, journal Recorder) *Server {
	if journal == nil {
		journal = noopRecorder{}
	}
	m := &Metrics{}
	reg := NewRegistry()
	led := NewLedger()
	disp := NewDispatcher(reg, led, journal, m, cfg.AcquireTimeout, cfg.DispatchBackoff, cfg.MaxDispatchAttempts)
	return &Server{
		cfg:        cfg,
		registry:   reg,
		ledger:     led,
		dispatcher: disp,
		journal:    journal,
		metrics:    m,
		ready:      make(chan struct{}),
	}
}

// Ledger exposes the pending-work ledger for maintenance jobs.
func (s *Server) Ledger() *Ledger { return s.ledger }

// Stats snapshots the broker state for the ops API.
func (s *Server) Stats() Stats {
	return s.metrics.snapshot(s.registry, s.ledger)
}

// Ready is closed once both listeners are bound.
func (s *Server) Ready() <-chan struct{} { return s.ready }

// ProducerAddr reports the bound producer address after Ready; it matters
// when the configured port is 0.
func (s *Server) ProducerAddr() string { return s.producerAddr }

// ExecutorAddr reports the bound executor address after Ready.
func (s *Server) ExecutorAddr() string { return s.executorAddr }

// Run listens on both endpoints and serves until ctx is canceled. Individual
// connection failures never escalate; the broker keeps running.
func (s *Server) Run(ctx context.Context) error {
	producerLn, err := net.Listen("tcp", s.cfg.ProducerAddr)
	if err != nil {
		return err
	}
	executorLn, err := net.Listen("tcp", s.cfg.ExecutorAddr)
	if err != nil {
		producerLn.Close()
		return err
	}
	s.producerAddr = producerLn.Addr().String()
	s.executorAddr = executorLn.Addr().String()
	close(s.ready)

	log.Info().
		Str("producer_addr", s.producerAddr).
		Str("executor_addr", s.executorAddr).
		Msg("broker listening")

	go s.dispatcher.Run(ctx)
	go s.acceptLoop(ctx, producerLn, s.serveProducer)
	go s.acceptLoop(ctx, executorLn, s.serveExecutor)

	<-ctx.Done()
	producerLn.Close()
	executorLn.Close()
	return nil
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, serve func(net.Conn)) {
	for {
		c, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("accept failed")
			continue
		}
		log.Info().Str("peer", c.RemoteAddr().String()).Msg("connection accepted")
		go serve(c)
	}
}

func (s *Server) serveProducer(c net.Conn) {
	sess := NewProducerSession(WrapConn(c), c, s.ledger, s.dispatcher, s.metrics, s.cfg.MaxLineBytes)
	sess.Run()
}

func (s *Server) serveExecutor(c net.Conn) {
	sess := NewExecutorSession(WrapConn(c), c, s.registry, s.ledger, s.dispatcher, s.journal, s.metrics, s.cfg.MaxLineBytes)
	sess.Run()
}
