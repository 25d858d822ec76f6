package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CycleStatus is the closed set of states a cycle moves through.
type CycleStatus string

// Cycle status constants.
const (
	CyclePending   CycleStatus = "pending"
	CycleRunning   CycleStatus = "running"
	CycleCompleted CycleStatus = "completed"
	CyclePartial   CycleStatus = "partial"
	CycleFailed    CycleStatus = "failed"
)

// Valid reports whether s is a member of the cycle status set.
func (s CycleStatus) Valid() bool {
	switch s {
	case CyclePending, CycleRunning, CycleCompleted, CyclePartial, CycleFailed:
		return true
	}
	return false
}

// Terminal reports whether the cycle is finished.
func (s CycleStatus) Terminal() bool {
	return s == CycleCompleted || s == CyclePartial || s == CycleFailed
}

// CycleError records one stage failure for operator diagnosis. Terminal
// cycles never discard these.
type CycleError struct {
	Timestamp time.Time
	ClientID  string
	Message   string
	Stage     Stage
}

// Cycle aggregates one dated run of the pipeline across all active
// clients. Mutated only by the orchestrator; immutable once terminal.
type Cycle struct {
	StartedAt              time.Time
	FinishedAt             *time.Time
	ID                     string
	InstanceID             string
	Status                 CycleStatus
	Errors                 []CycleError
	ClientsTotal           int
	ClientsProcessed       int
	ClientsFailed          int
	TransactionsCaptured   int
	TransactionsClassified int
	TransactionsSynced     int
	TransactionsInReview   int
}

// CycleID returns the date-scoped cycle identity for a day.
func CycleID(date time.Time) string {
	return fmt.Sprintf("cycle-%s", date.Format("2006-01-02"))
}

// NewCycle creates a pending cycle for the given date with a fresh
// instance id. Forced reruns of the same date get distinct instances.
func NewCycle(date time.Time) *Cycle {
	return &Cycle{
		ID:         CycleID(date),
		InstanceID: uuid.New().String(),
		Status:     CyclePending,
		StartedAt:  time.Now().UTC(),
	}
}

// DeriveCycleStatus maps the final client counts onto a terminal status.
func DeriveCycleStatus(clientsTotal, clientsFailed int) CycleStatus {
	switch {
	case clientsFailed == 0:
		return CycleCompleted
	case clientsFailed >= clientsTotal:
		return CycleFailed
	default:
		return CyclePartial
	}
}
