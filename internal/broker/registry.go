package broker

import (
	"sync"
	"time"
)

// Executor is one registered executor connection. The Conn is exclusively
// owned by its session; the registry only hands out send access.
type Executor struct {
	ID   string
	Conn Conn
}

// Registry tracks connected executors and rotates the idle ones. Acquire pops
// from the head and Release/Register append to the tail, so repeated dispatch
// cycles through executors in registration order. Executors carry no
// priorities or capabilities; they are interchangeable.
type Registry struct {
	mu      sync.Mutex
	idle    []*Executor
	members map[string]*Executor
	busy    map[string]Task // executor id -> task it is holding
	wake    chan struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]*Executor),
		busy:    make(map[string]Task),
		wake:    make(chan struct{}, 1),
	}
}

// Register adds an idle executor at the tail of the rotation. If the id is
// already present the stale registration is replaced (last writer wins) and
// replaced reports true so the caller can log it.
func (r *Registry) Register(id string, c Conn) (replaced bool) {
	r.mu.Lock()
	if _, ok := r.members[id]; ok {
		replaced = true
		delete(r.busy, id)
	}
	e := &Executor{ID: id, Conn: c}
	r.members[id] = e
	r.idle = append(r.idle, e)
	r.mu.Unlock()
	r.signal()
	return replaced
}

// Acquire removes and returns the executor at the head of the idle rotation,
// marking it busy with t. It waits up to timeout for one to become idle and
// reports ok=false on timeout; the caller decides whether to retry.
func (r *Registry) Acquire(timeout time.Duration, t Task) (*Executor, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		r.mu.Lock()
		for len(r.idle) > 0 {
			e := r.idle[0]
			r.idle = r.idle[1:]
			// Skip entries evicted or replaced while queued.
			if r.members[e.ID] != e {
				continue
			}
			r.busy[e.ID] = t
			more := len(r.idle) > 0
			r.mu.Unlock()
			// Forward the wake token when executors remain, so a second
			// waiter is not left sleeping on a dropped signal.
			if more {
				r.signal()
			}
			return e, true
		}
		r.mu.Unlock()

		select {
		case <-r.wake:
		case <-deadline.C:
			return nil, false
		}
	}
}

// Release returns an executor to the tail of the idle rotation. It is
// idempotent: releasing an id that is already idle, or was evicted in the
// meantime, is a no-op. A stale duplicate result must not insert the same
// executor into the rotation twice.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	e, ok := r.members[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if _, busy := r.busy[id]; !busy {
		r.mu.Unlock()
		return
	}
	delete(r.busy, id)
	r.idle = append(r.idle, e)
	r.mu.Unlock()
	r.signal()
}

// Evict removes an executor, but only while c still owns the registration:
// under last-writer-wins re-registration a stale session closing its dead
// connection must not take the fresh registration with it. If the evicted
// executor was holding a task, that task is returned so the caller can
// resolve it; the registry never decides the task's fate itself.
func (r *Registry) Evict(id string, c Conn) (held Task, wasBusy, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.members[id]
	if !ok || e.Conn != c {
		return Task{}, false, false
	}
	delete(r.members, id)
	held, wasBusy = r.busy[id]
	delete(r.busy, id)
	return held, wasBusy, true
}

// Size reports the number of registered executors, idle or busy.
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// IdleCount reports how many executors are currently eligible for dispatch.
func (r *Registry) IdleCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.idle {
		if r.members[e.ID] == e {
			n++
		}
	}
	return n
}

func (r *Registry) signal() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}
