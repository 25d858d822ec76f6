// Package model defines the core domain records shared by every part of
// the pipeline: transactions, clients, cycles and review items.
package model

// Status is the closed set of states a transaction moves through. The
// graph is forward-only; the only regression is an explicit rejection
// out of review.
type Status string

// Transaction status constants.
const (
	StatusNew         Status = "new"
	StatusCaptured    Status = "captured"
	StatusClassified  Status = "classified"
	StatusInReview    Status = "in_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusSyncPending Status = "sync_pending"
	StatusSynced      Status = "synced"
	StatusError       Status = "error"
)

// transitions enumerates every legal edge in the status graph. StatusError
// is reachable from any non-terminal state and is handled in CanTransition
// rather than listed per-state.
var transitions = map[Status][]Status{
	StatusNew:         {StatusCaptured},
	StatusCaptured:    {StatusClassified},
	StatusClassified:  {StatusInReview, StatusSyncPending},
	StatusInReview:    {StatusApproved, StatusRejected},
	StatusApproved:    {StatusSyncPending},
	StatusSyncPending: {StatusSynced},
	StatusRejected:    {},
	StatusSynced:      {},
	StatusError:       {},
}

// Valid reports whether s is a member of the status set.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusSynced || s == StatusError
}

// CanTransition reports whether the edge s -> to exists in the graph.
func (s Status) CanTransition(to Status) bool {
	if !s.Valid() || !to.Valid() {
		return false
	}
	if to == StatusError {
		return !s.Terminal()
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Stage identifies one pipeline phase. Used to tag cycle errors and to
// name the stage queues.
type Stage string

// Pipeline stages.
const (
	StageCapture  Stage = "capture"
	StageClassify Stage = "classify"
	StageSync     Stage = "sync"
	StageReview   Stage = "review"
)
