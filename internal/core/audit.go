package core

import "time"

type AuditEntry struct {
	// ID is the unique run ID this entry belongs to.
	ID string `json:"id"`

	// Time is the timestamp of the event
	Time time.Time `json:"time"`

	// Action describing what happened (e.g. "run.converge", "op.create")
	Action string `json:"action"`

	// Object is the platform object involved, if any
	Object string `json:"object,omitempty"`

	// State is the run state at the time of the event
	State RunState `json:"state,omitempty"`

	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`

	// Metadata contains extra details (created/skipped counts, outcomes, ...)
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Auditor interface {
	Log(entry AuditEntry) error
	Close() error
}
