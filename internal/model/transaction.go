package model

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes money leaving from money entering.
type TransactionType string

// Transaction type constants. Values match the wire format used by the
// stage queues ("tipo" field).
const (
	TypePayment TransactionType = "pagamento"
	TypeReceipt TransactionType = "recebimento"
)

// CategoryAssignment is the category attached to a transaction by the
// classifier or by a human resolving a doubt.
type CategoryAssignment struct {
	ID         string
	Name       string
	Confidence float64
}

// Transaction is a single financial movement captured from an external
// source for one client. It is never deleted; it only advances through
// the status graph.
type Transaction struct {
	Date         time.Time
	DueDate      time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ExternalRefs map[string]string
	Category     *CategoryAssignment
	ID           string
	ClientID     string
	Description  string
	Counterparty string
	Hash         string
	Type         TransactionType
	Status       Status
	Amount       decimal.Decimal
}

// ExternalRef returns the external id recorded for a destination, if any.
func (t *Transaction) ExternalRef(destination string) (string, bool) {
	if t.ExternalRefs == nil {
		return "", false
	}
	id, ok := t.ExternalRefs[destination]
	return id, ok
}

// SetExternalRef records the external id for a destination. A transaction
// holds at most one external id per destination; overwriting an existing
// ref with a different id is rejected.
func (t *Transaction) SetExternalRef(destination, externalID string) error {
	if t.ExternalRefs == nil {
		t.ExternalRefs = make(map[string]string)
	}
	if existing, ok := t.ExternalRefs[destination]; ok && existing != externalID {
		return fmt.Errorf("transaction %s already has external id %s for destination %s", t.ID, existing, destination)
	}
	t.ExternalRefs[destination] = externalID
	return nil
}

// GenerateHash creates a stable hash for duplicate detection across
// capture runs and redelivered messages.
func (t *Transaction) GenerateHash() string {
	data := fmt.Sprintf("%s:%s:%s:%s:%s",
		t.ClientID,
		t.Date.Format("2006-01-02"),
		t.Amount.String(),
		t.Description,
		t.Counterparty)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
