package executor

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"
)

func TestSumHandler(t *testing.T) {
	cases := []struct {
		payload string
		want    string
		wantErr bool
	}{
		{"1,2,3,4,5", "15", false},
		{"10, 20, 30", "60", false},
		{"7", "7", false},
		{"", "", true},
		{"1,two,3", "", true},
	}
	for _, c := range cases {
		got, err := Sum{}.Handle(context.Background(), c.payload)
		if c.wantErr {
			if err == nil {
				t.Errorf("Handle(%q): expected error", c.payload)
			}
			continue
		}
		if err != nil {
			t.Errorf("Handle(%q): %v", c.payload, err)
			continue
		}
		if got != c.want {
			t.Errorf("Handle(%q) = %q, want %q", c.payload, got, c.want)
		}
	}
}

func TestRunnerServesAssignments(t *testing.T) {
	brokerSide, runnerSide := net.Pipe()
	defer brokerSide.Close()

	r := NewRunner("", "w1", Sum{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.serve(ctx, runnerSide) }()

	brokerSide.SetDeadline(time.Now().Add(5 * time.Second))
	br := bufio.NewReader(brokerSide)

	if line, err := br.ReadString('\n'); err != nil || line != "REGISTER|w1\n" {
		t.Fatalf("handshake = %q, %v", line, err)
	}
	fmt.Fprint(brokerSide, "ACK|w1\n")

	fmt.Fprint(brokerSide, "ASSIGN_TASK|t1|1,2,3,4,5\n")
	if line, err := br.ReadString('\n'); err != nil || line != "TASK_RESULT|t1|15\n" {
		t.Fatalf("result = %q, %v; want TASK_RESULT|t1|15", line, err)
	}

	// Handler failures come back as error results, the loop continues.
	fmt.Fprint(brokerSide, "ASSIGN_TASK|t2|1,two\n")
	line, err := br.ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if want := "TASK_RESULT|t2|ERROR: "; len(line) < len(want) || line[:len(want)] != want {
		t.Fatalf("failure result = %q, want %q prefix", line, want)
	}

	brokerSide.Close()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not exit after disconnect")
	}
}

func TestRunnerHandlesPayloadBeyondDefaultScannerLimit(t *testing.T) {
	brokerSide, runnerSide := net.Pipe()
	defer brokerSide.Close()

	r := NewRunner("", "w1", Sum{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.serve(ctx, runnerSide) }()

	brokerSide.SetDeadline(time.Now().Add(5 * time.Second))
	br := bufio.NewReader(brokerSide)
	if _, err := br.ReadString('\n'); err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(brokerSide, "ACK|w1\n")

	// ~100KB payload, well past bufio.Scanner's 64KB default buffer.
	payload := strings.Repeat("1,", 50000) + "1"
	go fmt.Fprintf(brokerSide, "ASSIGN_TASK|t3|%s\n", payload)

	if line, err := br.ReadString('\n'); err != nil || line != "TASK_RESULT|t3|50001\n" {
		t.Fatalf("result = %q, %v; want TASK_RESULT|t3|50001", line, err)
	}
}

func TestRunnerRejectsBadHandshakeReply(t *testing.T) {
	brokerSide, runnerSide := net.Pipe()
	defer brokerSide.Close()

	r := NewRunner("", "w1", Sum{})
	done := make(chan error, 1)
	go func() { done <- r.serve(context.Background(), runnerSide) }()

	br := bufio.NewReader(brokerSide)
	if _, err := br.ReadString('\n'); err != nil {
		t.Fatal(err)
	}
	fmt.Fprint(brokerSide, "RESULT|x|nope\n")

	select {
	case err := <-done:
		if err == nil {
			t.Error("runner accepted a non-ACK handshake reply")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not exit on bad handshake")
	}
}
