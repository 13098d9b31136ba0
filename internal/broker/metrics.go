package broker

import "sync/atomic"

// Metrics are broker-lifetime counters, exported on the ops endpoint.
type Metrics struct {
	TasksAccepted    atomic.Int64
	TasksDispatched  atomic.Int64
	ResultsDelivered atomic.Int64
	TasksFailed      atomic.Int64
	TasksRequeued    atomic.Int64
	DuplicateTasks   atomic.Int64
	ProtocolErrors   atomic.Int64
	ExecutorsEvicted atomic.Int64
}

// Stats is a point-in-time snapshot for the ops API.
type Stats struct {
	Executors        int   `json:"executors"`
	IdleExecutors    int   `json:"idle_executors"`
	PendingTasks     int   `json:"pending_tasks"`
	TasksAccepted    int64 `json:"tasks_accepted"`
	TasksDispatched  int64 `json:"tasks_dispatched"`
	ResultsDelivered int64 `json:"results_delivered"`
	TasksFailed      int64 `json:"tasks_failed"`
	TasksRequeued    int64 `json:"tasks_requeued"`
	DuplicateTasks   int64 `json:"duplicate_tasks"`
	ProtocolErrors   int64 `json:"protocol_errors"`
	ExecutorsEvicted int64 `json:"executors_evicted"`
}

func (m *Metrics) snapshot(reg *Registry, led *Ledger) Stats {
	return Stats{
		Executors:        reg.Size(),
		IdleExecutors:    reg.IdleCount(),
		PendingTasks:     led.Len(),
		TasksAccepted:    m.TasksAccepted.Load(),
		TasksDispatched:  m.TasksDispatched.Load(),
		ResultsDelivered: m.ResultsDelivered.Load(),
		TasksFailed:      m.TasksFailed.Load(),
		TasksRequeued:    m.TasksRequeued.Load(),
		DuplicateTasks:   m.DuplicateTasks.Load(),
		ProtocolErrors:   m.ProtocolErrors.Load(),
		ExecutorsEvicted: m.ExecutorsEvicted.Load(),
	}
}
