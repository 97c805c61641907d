package queue

import "errors"

var (
	// ErrNotFound is returned when a lead has no active queue item.
	ErrNotFound = errors.New("queue item not found")

	// ErrNoAgentAvailable is returned when no active agent has spare
	// capacity. Callers may retry later; the lead stays enqueued.
	ErrNoAgentAvailable = errors.New("no agent available")
)
