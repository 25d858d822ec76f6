package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"fechamento/internal/common"
	"fechamento/internal/service"
)

type remoteRecord struct {
	id       string
	clientID string
	rec      service.SyncRecord
}

// MemoryDestination is an in-process destination. It keeps created
// records per client so the reconciler's existence probe behaves like a
// real ERP's duplicate search.
type MemoryDestination struct {
	records map[string][]remoteRecord
	kind    string
	mu      sync.Mutex
}

// NewMemoryDestination creates a destination of the given kind.
func NewMemoryDestination(kind string) *MemoryDestination {
	return &MemoryDestination{
		kind:    kind,
		records: make(map[string][]remoteRecord),
	}
}

// Kind identifies the destination.
func (d *MemoryDestination) Kind() string {
	return d.kind
}

// Create stores a new record and returns its external id.
func (d *MemoryDestination) Create(_ context.Context, clientID string, rec service.SyncRecord) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	id := uuid.New().String()
	d.records[clientID] = append(d.records[clientID], remoteRecord{
		id:       id,
		clientID: clientID,
		rec:      rec,
	})
	return id, nil
}

// Update overwrites an existing record.
func (d *MemoryDestination) Update(_ context.Context, clientID, externalID string, rec service.SyncRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i, r := range d.records[clientID] {
		if r.id == externalID {
			d.records[clientID][i].rec = rec
			return nil
		}
	}
	return common.NewValidationError(fmt.Sprintf("no record %s for client %s", externalID, clientID), nil)
}

// FindExisting probes for a record matching description, amount and due
// date window.
func (d *MemoryDestination) FindExisting(_ context.Context, clientID string, q service.ExistingQuery) (string, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, r := range d.records[clientID] {
		if r.rec.Description != q.Description || !r.rec.Amount.Equal(q.Amount) {
			continue
		}
		if r.rec.DueDate.Before(q.DateFrom) || r.rec.DueDate.After(q.DateTo) {
			continue
		}
		return r.id, true, nil
	}
	return "", false, nil
}

// Records returns a copy of the records created for one client.
func (d *MemoryDestination) Records(clientID string) []service.SyncRecord {
	d.mu.Lock()
	defer d.mu.Unlock()

	recs := make([]service.SyncRecord, 0, len(d.records[clientID]))
	for _, r := range d.records[clientID] {
		recs = append(recs, r.rec)
	}
	return recs
}
