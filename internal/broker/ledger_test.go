package broker

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestLedgerPutTake(t *testing.T) {
	l := NewLedger()
	owner := &fakeConn{}
	if err := l.Put("t1", owner); err != nil {
		t.Fatal(err)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d, want 1", l.Len())
	}

	got, ok := l.Take("t1")
	if !ok || got != Conn(owner) {
		t.Fatal("take did not return the owner")
	}
	if _, ok := l.Take("t1"); ok {
		t.Error("second take for the same id succeeded")
	}
}

func TestLedgerRejectsDuplicateID(t *testing.T) {
	l := NewLedger()
	first := &fakeConn{}
	if err := l.Put("t1", first); err != nil {
		t.Fatal(err)
	}
	err := l.Put("t1", &fakeConn{})
	if !errors.Is(err, ErrDuplicateTask) {
		t.Fatalf("duplicate put error = %v, want ErrDuplicateTask", err)
	}

	// Original entry untouched.
	got, ok := l.Take("t1")
	if !ok || got != Conn(first) {
		t.Error("duplicate put disturbed the original entry")
	}
}

func TestLedgerTakeUnknown(t *testing.T) {
	l := NewLedger()
	if _, ok := l.Take("missing"); ok {
		t.Error("take of unknown id succeeded")
	}
}

func TestLedgerDropOwner(t *testing.T) {
	l := NewLedger()
	gone := &fakeConn{}
	stays := &fakeConn{}
	l.Put("t1", gone)
	l.Put("t2", stays)
	l.Put("t3", gone)

	if n := l.DropOwner(gone); n != 2 {
		t.Fatalf("dropped %d entries, want 2", n)
	}
	if l.Len() != 1 {
		t.Fatalf("len = %d after drop, want 1", l.Len())
	}
	if _, ok := l.Take("t2"); !ok {
		t.Error("unrelated entry was dropped")
	}
}

func TestLedgerSweep(t *testing.T) {
	l := NewLedger()
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	l.nowFn = func() time.Time { return now }

	owner := &fakeConn{}
	l.Put("old", owner)
	now = now.Add(10 * time.Minute)
	l.Put("fresh", owner)

	swept := l.Sweep(5*time.Minute, now)
	if len(swept) != 1 || swept[0].TaskID != "old" || swept[0].Owner != Conn(owner) {
		t.Fatalf("swept = %+v, want just the old entry", swept)
	}
	if _, ok := l.Take("fresh"); !ok {
		t.Error("fresh entry was swept")
	}
}

func TestLedgerConcurrentDistinctIDs(t *testing.T) {
	l := NewLedger()
	owner := &fakeConn{}
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("t%d", i)
			if err := l.Put(id, owner); err != nil {
				t.Errorf("put %s: %v", id, err)
				return
			}
			if _, ok := l.Take(id); !ok {
				t.Errorf("take %s failed", id)
			}
		}(i)
	}
	wg.Wait()
	if l.Len() != 0 {
		t.Errorf("len = %d after concurrent put/take, want 0", l.Len())
	}
}
