package model

import "time"

// CycleRunState is the persisted state-machine record for a cycle run.
// The orchestrator loads it, advances it, and saves it, so a run can be
// inspected (and a crashed run diagnosed) without relying on any
// host-managed execution history.
type CycleRunState struct {
	UpdatedAt      time.Time
	CycleID        string
	InstanceID     string
	State          CycleStatus
	PendingClients []string
}
