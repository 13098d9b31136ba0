package broker

import (
	"errors"
	"hash/fnv"
	"sync"
	"time"
)

// ErrDuplicateTask is returned by Put when a task id is already pending.
// Duplicate ids are a caller error; the broker rejects them explicitly rather
// than overwriting the live entry.
var ErrDuplicateTask = errors.New("task id already pending")

const ledgerShards = 16

// Ledger maps in-flight task ids to the producer connections that must
// receive their results. It is the single source of truth for result routing.
// The map is sharded by task id so operations on unrelated tasks do not
// contend on one lock.
type Ledger struct {
	shards [ledgerShards]ledgerShard
	nowFn  func() time.Time
}

type ledgerShard struct {
	mu      sync.Mutex
	entries map[string]ledgerEntry
}

type ledgerEntry struct {
	owner Conn
	added time.Time
}

// SweptEntry identifies a pending entry removed by Sweep, with the producer
// it belonged to so the caller can notify it.
type SweptEntry struct {
	TaskID string
	Owner  Conn
}

func NewLedger() *Ledger {
	l := &Ledger{nowFn: time.Now}
	for i := range l.shards {
		l.shards[i].entries = make(map[string]ledgerEntry)
	}
	return l
}

func (l *Ledger) shard(taskID string) *ledgerShard {
	h := fnv.New32a()
	h.Write([]byte(taskID))
	return &l.shards[h.Sum32()%ledgerShards]
}

// Put records that taskID's result belongs to owner. It fails with
// ErrDuplicateTask if the id is already pending.
func (l *Ledger) Put(taskID string, owner Conn) error {
	s := l.shard(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[taskID]; ok {
		return ErrDuplicateTask
	}
	s.entries[taskID] = ledgerEntry{owner: owner, added: l.nowFn()}
	return nil
}

// Take atomically removes and returns the producer for taskID, so a result is
// routed at most once per task id. ok is false when the id is unknown
// (producer gone, stale duplicate, or already resolved).
func (l *Ledger) Take(taskID string) (Conn, bool) {
	s := l.shard(taskID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[taskID]
	if !ok {
		return nil, false
	}
	delete(s.entries, taskID)
	return e.owner, true
}

// Drop removes taskID without returning it.
func (l *Ledger) Drop(taskID string) {
	s := l.shard(taskID)
	s.mu.Lock()
	delete(s.entries, taskID)
	s.mu.Unlock()
}

// DropOwner removes every entry belonging to owner and reports how many were
// dropped. Producer sessions call it on disconnect so a closed connection
// never lingers in the ledger.
func (l *Ledger) DropOwner(owner Conn) int {
	dropped := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for id, e := range s.entries {
			if e.owner == owner {
				delete(s.entries, id)
				dropped++
			}
		}
		s.mu.Unlock()
	}
	return dropped
}

// Sweep removes entries added before now minus maxAge and returns them. It
// backstops entries stranded by executors that hold a task forever.
func (l *Ledger) Sweep(maxAge time.Duration, now time.Time) []SweptEntry {
	cutoff := now.Add(-maxAge)
	var swept []SweptEntry
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		for id, e := range s.entries {
			if e.added.Before(cutoff) {
				delete(s.entries, id)
				swept = append(swept, SweptEntry{TaskID: id, Owner: e.owner})
			}
		}
		s.mu.Unlock()
	}
	return swept
}

// Len reports the number of pending entries.
func (l *Ledger) Len() int {
	n := 0
	for i := range l.shards {
		s := &l.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}
