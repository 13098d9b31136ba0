// Package client is a minimal producer-side client for the broker's wire
// protocol. It submits one task at a time and blocks for its result, which is
// the only usage pattern safe against out-of-order delivery on a shared
// connection.
package client

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"taskbridge/internal/protocol"
)

type Client struct {
	conn net.Conn
	sc   *bufio.Scanner
}

func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	return &Client{conn: conn, sc: bufio.NewScanner(conn)}, nil
}

// Do submits payload as a new task and waits up to timeout for its result.
// Task ids are generated client-side; the broker treats them as opaque.
func (c *Client) Do(payload string, timeout time.Duration) (string, error) {
	taskID := "task_" + uuid.NewString()[:8]

	if timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return "", err
		}
		defer c.conn.SetDeadline(time.Time{})
	}

	line := protocol.Encode(protocol.Message{Kind: protocol.KindTask, ID: taskID, Body: payload})
	if _, err := fmt.Fprint(c.conn, line); err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}

	for c.sc.Scan() {
		msg, err := protocol.Decode(c.sc.Text())
		if err != nil {
			return "", err
		}
		if msg.Kind != protocol.KindResult || msg.ID != taskID {
			// Stale result from an earlier timed-out call; skip it.
			continue
		}
		return msg.Body, nil
	}
	if err := c.sc.Err(); err != nil {
		return "", err
	}
	return "", fmt.Errorf("connection closed before result")
}

func (c *Client) Close() error {
	return c.conn.Close()
}
