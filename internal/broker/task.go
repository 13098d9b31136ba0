package broker

// Task is one unit of work in flight through the broker. It is immutable from
// the producer's point of view; Attempts and Requeued are dispatch-side
// bookkeeping.
type Task struct {
	ID      string
	Payload string

	// Attempts counts dispatch attempts so far, including acquire timeouts
	// and failed transmits.
	Attempts int

	// Requeued marks a task that already survived one executor loss. A second
	// loss fails it to the producer instead of requeuing again.
	Requeued bool
}
