package broker

import (
	"bufio"
	"context"
	"io"

	"github.com/rs/zerolog/log"

	"taskbridge/internal/history"
	"taskbridge/internal/protocol"
)

// ExecutorSession runs the loop for one executor connection. The first line
// must be a REGISTER handshake; anything else aborts the session without
// entering the pool. After the ACK, only TASK_RESULT messages are expected:
// each one is routed to its producer via the ledger and the executor returns
// to the idle rotation. Disconnect evicts the executor; a task it was holding
// is handed to the dispatcher to recover.
type ExecutorSession struct {
	conn       Conn
	r          io.Reader
	registry   *Registry
	ledger     *Ledger
	dispatcher *Dispatcher
	journal    Recorder
	metrics    *Metrics
	maxLine    int
}

func NewExecutorSession(conn Conn, r io.Reader, reg *Registry, led *Ledger, disp *Dispatcher, journal Recorder, m *Metrics, maxLine int) *ExecutorSession {
	if journal == nil {
		journal = noopRecorder{}
	}
	return &ExecutorSession{conn: conn, r: r, registry: reg, ledger: led, dispatcher: disp, journal: journal, metrics: m, maxLine: maxLine}
}

func (s *ExecutorSession) Run() {
	sc := bufio.NewScanner(s.r)
	sc.Buffer(make([]byte, 0, 64*1024), s.maxLine)

	id, ok := s.handshake(sc)
	if !ok {
		_ = s.conn.Close()
		return
	}

	for sc.Scan() {
		msg, err := protocol.Decode(sc.Text())
		if err != nil {
			s.metrics.ProtocolErrors.Add(1)
			log.Warn().Err(err).Str("executor_id", id).Msg("bad executor message")
			continue
		}
		if msg.Kind != protocol.KindTaskResult {
			s.metrics.ProtocolErrors.Add(1)
			log.Warn().Str("executor_id", id).Str("tag", string(msg.Kind)).Msg("unexpected message from executor")
			continue
		}

		s.resolve(msg.ID, msg.Body, id)
		s.registry.Release(id)
	}
	if err := sc.Err(); err != nil {
		log.Debug().Err(err).Str("executor_id", id).Msg("executor read ended")
	}

	held, wasBusy, removed := s.registry.Evict(id, s.conn)
	if removed {
		s.metrics.ExecutorsEvicted.Add(1)
	}
	_ = s.conn.Close()
	log.Info().Str("executor_id", id).Bool("was_busy", wasBusy).Msg("executor disconnected")
	if wasBusy {
		s.dispatcher.Recover(held)
	}
}

// handshake consumes the first line and registers the executor. It reports
// ok=false when the line is missing, malformed, or not a REGISTER, or when
// the ACK cannot be delivered.
func (s *ExecutorSession) handshake(sc *bufio.Scanner) (string, bool) {
	if !sc.Scan() {
		return "", false
	}
	msg, err := protocol.Decode(sc.Text())
	if err != nil || msg.Kind != protocol.KindRegister {
		s.metrics.ProtocolErrors.Add(1)
		log.Warn().Str("peer", s.conn.RemoteAddr()).Msg("executor registration rejected")
		return "", false
	}

	ack := protocol.Encode(protocol.Message{Kind: protocol.KindAck, ID: msg.ID})
	if err := s.conn.Send(ack); err != nil {
		log.Warn().Err(err).Str("executor_id", msg.ID).Msg("ack transmit failed")
		return "", false
	}

	if replaced := s.registry.Register(msg.ID, s.conn); replaced {
		log.Warn().Str("executor_id", msg.ID).Msg("executor id re-registered, stale entry replaced")
	}
	log.Info().Str("executor_id", msg.ID).Str("peer", s.conn.RemoteAddr()).Msg("executor registered")
	return msg.ID, true
}

// resolve routes one result to its owning producer. An unknown task id means
// the producer is gone or the result is a stale duplicate; it is discarded
// with a log, never fatal.
func (s *ExecutorSession) resolve(taskID, result, executorID string) {
	owner, ok := s.ledger.Take(taskID)
	if !ok {
		log.Warn().Str("task_id", taskID).Str("executor_id", executorID).Msg("no producer for result, discarding")
		return
	}

	line := protocol.Encode(protocol.Message{Kind: protocol.KindResult, ID: taskID, Body: result})
	if err := owner.Send(line); err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("result transmit to producer failed")
		return
	}

	s.metrics.ResultsDelivered.Add(1)
	log.Info().Str("task_id", taskID).Str("executor_id", executorID).Msg("result delivered")

	if _, err := s.journal.Append(context.Background(), history.Entry{
		TaskID:     taskID,
		ExecutorID: executorID,
		Outcome:    history.OutcomeCompleted,
	}); err != nil {
		log.Warn().Err(err).Str("task_id", taskID).Msg("journal append failed")
	}
}
