package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AuthorizationStatus tracks a pending human sign-off.
type AuthorizationStatus string

// Authorization states.
const (
	AuthorizationPending  AuthorizationStatus = "pending"
	AuthorizationApproved AuthorizationStatus = "approved"
	AuthorizationRejected AuthorizationStatus = "rejected"
)

// PendingAuthorization links to a transaction that needs human sign-off
// before it may sync, typically a payment or receipt above the
// materiality threshold.
type PendingAuthorization struct {
	CreatedAt     time.Time
	ResolvedAt    *time.Time
	ID            string
	TransactionID string
	ClientID      string
	CycleID       string
	Reason        string
	ResolvedBy    string
	Status        AuthorizationStatus
	Amount        decimal.Decimal
}

// DoubtStatus tracks a pending classification disambiguation.
type DoubtStatus string

// Doubt states.
const (
	DoubtPending  DoubtStatus = "pending"
	DoubtResolved DoubtStatus = "resolved"
	DoubtSkipped  DoubtStatus = "skipped"
)

// EnrichmentDoubt links to a transaction whose classification confidence
// fell below the threshold or which is a suspected duplicate. Holds the
// classifier's suggestion so a reviewer can confirm or replace it.
type EnrichmentDoubt struct {
	CreatedAt         time.Time
	ResolvedAt        *time.Time
	SuggestedCategory *CategoryAssignment
	ID                string
	TransactionID     string
	ClientID          string
	CycleID           string
	Reason            string
	Status            DoubtStatus
}
