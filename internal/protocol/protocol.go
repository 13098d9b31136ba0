// Package protocol implements the line-oriented wire format spoken between
// producers, the broker, and executors. A message is a tag followed by
// pipe-separated fields, terminated by a newline. The last field of a message
// takes the remainder of the line verbatim, so payloads and results may
// themselves contain the pipe character.
package protocol

import (
	"fmt"
	"strings"
)

// Kind is the message tag, the first pipe-delimited field of every line.
type Kind string

const (
	// KindTask is sent by a producer to submit work: TASK|task_id|payload.
	KindTask Kind = "TASK"
	// KindResult is sent to a producer when work finishes: RESULT|task_id|result.
	KindResult Kind = "RESULT"
	// KindRegister is the executor handshake: REGISTER|executor_id.
	KindRegister Kind = "REGISTER"
	// KindAck confirms executor registration: ACK|executor_id.
	KindAck Kind = "ACK"
	// KindAssign hands a task to an executor: ASSIGN_TASK|task_id|payload.
	KindAssign Kind = "ASSIGN_TASK"
	// KindTaskResult carries an executor's result: TASK_RESULT|task_id|result.
	KindTaskResult Kind = "TASK_RESULT"
)

// arities maps each tag to its field count after the tag itself.
var arities = map[Kind]int{
	KindTask:       2,
	KindResult:     2,
	KindRegister:   1,
	KindAck:        1,
	KindAssign:     2,
	KindTaskResult: 2,
}

// Message is one decoded wire line. ID holds the task or executor id; Body
// holds the payload or result and is empty for single-field messages.
type Message struct {
	Kind Kind
	ID   string
	Body string
}

// Error reports a malformed or unexpected line. It is connection-local:
// callers log it and keep reading.
type Error struct {
	Line   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol: %s: %q", e.Reason, e.Line)
}

// Encode renders m as a newline-terminated wire line.
func Encode(m Message) string {
	if arities[m.Kind] == 1 {
		return string(m.Kind) + "|" + m.ID + "\n"
	}
	return string(m.Kind) + "|" + m.ID + "|" + m.Body + "\n"
}

// Decode parses a single line, with or without its trailing newline. It splits
// into at most tag+arity parts so the final field keeps embedded pipes.
func Decode(line string) (Message, error) {
	trimmed := strings.TrimRight(line, "\r\n")
	if trimmed == "" {
		return Message{}, &Error{Line: line, Reason: "empty line"}
	}

	tag, rest, found := strings.Cut(trimmed, "|")
	kind := Kind(tag)
	arity, known := arities[kind]
	if !known {
		return Message{}, &Error{Line: trimmed, Reason: "unknown tag"}
	}
	if !found {
		return Message{}, &Error{Line: trimmed, Reason: "missing fields"}
	}

	if arity == 1 {
		if rest == "" {
			return Message{}, &Error{Line: trimmed, Reason: "empty id"}
		}
		return Message{Kind: kind, ID: rest}, nil
	}

	id, body, ok := strings.Cut(rest, "|")
	if !ok {
		return Message{}, &Error{Line: trimmed, Reason: "wrong field count"}
	}
	if id == "" {
		return Message{}, &Error{Line: trimmed, Reason: "empty id"}
	}
	return Message{Kind: kind, ID: id, Body: body}, nil
}
