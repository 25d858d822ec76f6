package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveCycleStatus(t *testing.T) {
	tests := []struct {
		name   string
		want   CycleStatus
		total  int
		failed int
	}{
		{name: "all clients succeeded", total: 5, failed: 0, want: CycleCompleted},
		{name: "one failure is partial", total: 5, failed: 1, want: CyclePartial},
		{name: "most failures still partial", total: 5, failed: 4, want: CyclePartial},
		{name: "all failed", total: 5, failed: 5, want: CycleFailed},
		{name: "single client failure", total: 1, failed: 1, want: CycleFailed},
		{name: "empty cycle completes", total: 0, failed: 0, want: CycleCompleted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeriveCycleStatus(tt.total, tt.failed))
		})
	}
}

func TestCycleIDIsDateScoped(t *testing.T) {
	date := time.Date(2026, 3, 15, 14, 30, 0, 0, time.UTC)
	assert.Equal(t, "cycle-2026-03-15", CycleID(date))

	// Same day, different time, same identity.
	later := time.Date(2026, 3, 15, 23, 59, 0, 0, time.UTC)
	assert.Equal(t, CycleID(date), CycleID(later))
}

func TestNewCycleInstancesAreDistinct(t *testing.T) {
	date := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)

	first := NewCycle(date)
	second := NewCycle(date)

	require.Equal(t, first.ID, second.ID)
	assert.NotEqual(t, first.InstanceID, second.InstanceID)
	assert.Equal(t, CyclePending, first.Status)
	assert.False(t, first.StartedAt.IsZero())
}
