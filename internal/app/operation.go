package app

import (
	"time"

	"github.com/google/uuid"
)

// Operation identifies one CLI command run. Its ID tags every log line the
// command writes.
type Operation struct {
	ID        string
	Name      string
	StartedAt time.Time
	Status    string // "running", "success" or "error"
}

// NewOperation starts a new operation record.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		ID:        uuid.New().String(),
		Name:      name,
		StartedAt: now,
		Status:    "running",
	}
}

// Finish records the outcome of the operation.
func (op *Operation) Finish(err error) {
	if err != nil {
		op.Status = "error"
		return
	}
	op.Status = "success"
}

// Done reports whether Finish has been called.
func (op *Operation) Done() bool {
	return op.Status != "running"
}
