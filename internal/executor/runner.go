// Package executor implements the executor-side runtime: connect to the
// broker, register, and serve assigned tasks through a pluggable handler.
package executor

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"github.com/rs/zerolog/log"

	"taskbridge/internal/protocol"
)

// Handler computes the result for one task payload. Returning an error turns
// into an "ERROR: ..." result string for the producer, mirroring how the
// broker reports its own failures; the executor connection stays up.
type Handler interface {
	Handle(ctx context.Context, payload string) (string, error)
}

// maxLineBytes matches the broker's line cap; an assignment payload can be
// far larger than the scanner's default token size.
const maxLineBytes = 1 << 20

// Runner owns one broker connection and serves tasks until the connection
// drops or ctx is canceled.
type Runner struct {
	addr    string
	id      string
	handler Handler
}

func NewRunner(addr, id string, h Handler) *Runner {
	return &Runner{addr: addr, id: id, handler: h}
}

// Run dials the broker and serves until disconnect.
func (r *Runner) Run(ctx context.Context) error {
	conn, err := net.Dial("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	return r.serve(ctx, conn)
}

// serve performs the handshake and the assignment loop on an established
// connection. Split from Run so it is testable over a pipe.
func (r *Runner) serve(ctx context.Context, conn net.Conn) error {
	sc := bufio.NewScanner(conn)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	if _, err := fmt.Fprint(conn, protocol.Encode(protocol.Message{Kind: protocol.KindRegister, ID: r.id})); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	if !sc.Scan() {
		return fmt.Errorf("connection closed during handshake")
	}
	ack, err := protocol.Decode(sc.Text())
	if err != nil || ack.Kind != protocol.KindAck {
		return fmt.Errorf("unexpected handshake reply %q", sc.Text())
	}
	log.Info().Str("executor_id", r.id).Str("broker", r.addr).Msg("registered with broker")

	for sc.Scan() {
		msg, err := protocol.Decode(sc.Text())
		if err != nil {
			log.Warn().Err(err).Msg("bad broker message")
			continue
		}
		if msg.Kind != protocol.KindAssign {
			log.Warn().Str("tag", string(msg.Kind)).Msg("unexpected message from broker")
			continue
		}

		result, err := r.handler.Handle(ctx, msg.Body)
		if err != nil {
			log.Warn().Err(err).Str("task_id", msg.ID).Msg("task handler failed")
			result = "ERROR: " + err.Error()
		} else {
			log.Info().Str("task_id", msg.ID).Msg("task processed")
		}

		reply := protocol.Encode(protocol.Message{Kind: protocol.KindTaskResult, ID: msg.ID, Body: result})
		if _, err := fmt.Fprint(conn, reply); err != nil {
			return fmt.Errorf("send result: %w", err)
		}
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return sc.Err()
}
