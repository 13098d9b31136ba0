package broker

import (
	"bufio"
	"io"

	"github.com/rs/zerolog/log"

	"taskbridge/internal/protocol"
)

// ProducerSession runs the read loop for one producer connection: decode TASK
// lines, register them in the ledger, and hand them to the dispatcher. It
// never waits for a task to finish; results are written back on the same
// connection by whichever goroutine resolves them. Malformed input is logged
// and skipped, never fatal.
type ProducerSession struct {
	conn       Conn
	r          io.Reader
	ledger     *Ledger
	dispatcher *Dispatcher
	metrics    *Metrics
	maxLine    int
}

func NewProducerSession(conn Conn, r io.Reader, led *Ledger, disp *Dispatcher, m *Metrics, maxLine int) *ProducerSession {
	return &ProducerSession{conn: conn, r: r, ledger: led, dispatcher: disp, metrics: m, maxLine: maxLine}
}

func (s *ProducerSession) Run() {
	defer s.close()

	sc := bufio.NewScanner(s.r)
	sc.Buffer(make([]byte, 0, 64*1024), s.maxLine)

	for sc.Scan() {
		msg, err := protocol.Decode(sc.Text())
		if err != nil {
			s.metrics.ProtocolErrors.Add(1)
			log.Warn().Err(err).Str("peer", s.conn.RemoteAddr()).Msg("bad producer message")
			continue
		}
		if msg.Kind != protocol.KindTask {
			s.metrics.ProtocolErrors.Add(1)
			log.Warn().Str("peer", s.conn.RemoteAddr()).Str("tag", string(msg.Kind)).Msg("unexpected message from producer")
			continue
		}

		if err := s.ledger.Put(msg.ID, s.conn); err != nil {
			s.metrics.DuplicateTasks.Add(1)
			log.Warn().Str("task_id", msg.ID).Str("peer", s.conn.RemoteAddr()).Msg("duplicate task id rejected")
			reply := protocol.Encode(protocol.Message{Kind: protocol.KindResult, ID: msg.ID, Body: "ERROR: duplicate task id"})
			if err := s.conn.Send(reply); err != nil {
				return
			}
			continue
		}

		s.metrics.TasksAccepted.Add(1)
		log.Info().Str("task_id", msg.ID).Str("peer", s.conn.RemoteAddr()).Msg("task accepted")
		s.dispatcher.Submit(Task{ID: msg.ID, Payload: msg.Body})
	}
	if err := sc.Err(); err != nil {
		log.Debug().Err(err).Str("peer", s.conn.RemoteAddr()).Msg("producer read ended")
	}
}

func (s *ProducerSession) close() {
	if n := s.ledger.DropOwner(s.conn); n > 0 {
		log.Info().Int("dropped", n).Str("peer", s.conn.RemoteAddr()).Msg("dropped pending tasks of disconnected producer")
	}
	_ = s.conn.Close()
	log.Info().Str("peer", s.conn.RemoteAddr()).Msg("producer disconnected")
}
