package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{name: "new to captured", from: StatusNew, to: StatusCaptured, want: true},
		{name: "captured to classified", from: StatusCaptured, to: StatusClassified, want: true},
		{name: "classified to review", from: StatusClassified, to: StatusInReview, want: true},
		{name: "classified straight to sync", from: StatusClassified, to: StatusSyncPending, want: true},
		{name: "review to approved", from: StatusInReview, to: StatusApproved, want: true},
		{name: "review to rejected", from: StatusInReview, to: StatusRejected, want: true},
		{name: "approved to sync_pending", from: StatusApproved, to: StatusSyncPending, want: true},
		{name: "sync_pending to synced", from: StatusSyncPending, to: StatusSynced, want: true},
		{name: "no skipping classify", from: StatusCaptured, to: StatusSynced, want: false},
		{name: "no regression", from: StatusClassified, to: StatusCaptured, want: false},
		{name: "synced is terminal", from: StatusSynced, to: StatusSyncPending, want: false},
		{name: "rejected is terminal", from: StatusRejected, to: StatusInReview, want: false},
		{name: "error from non-terminal", from: StatusCaptured, to: StatusError, want: true},
		{name: "error from review", from: StatusInReview, to: StatusError, want: true},
		{name: "no error from terminal", from: StatusSynced, to: StatusError, want: false},
		{name: "unknown status", from: Status("bogus"), to: StatusCaptured, want: false},
		{name: "unknown target", from: StatusNew, to: Status("bogus"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestStatusValidAndTerminal(t *testing.T) {
	for _, s := range []Status{
		StatusNew, StatusCaptured, StatusClassified, StatusInReview,
		StatusApproved, StatusRejected, StatusSyncPending, StatusSynced, StatusError,
	} {
		assert.True(t, s.Valid(), "%s should be valid", s)
	}
	assert.False(t, Status("pending_review").Valid())

	assert.True(t, StatusSynced.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.False(t, StatusSyncPending.Terminal())
}
