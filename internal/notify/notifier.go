// Package notify provides the default stakeholder notifier. The real
// email/chat gateway is an external collaborator behind the same
// contract; this implementation records notifications in the log so
// single-process deployments still leave an audit trail.
package notify

import (
	"context"
	"log/slog"

	"fechamento/internal/model"
	"fechamento/internal/service"
)

// LogNotifier writes notifications to the structured log.
type LogNotifier struct{}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// CycleFinished records the cycle summary.
func (n *LogNotifier) CycleFinished(_ context.Context, cycle *model.Cycle) error {
	slog.Info("notification: cycle finished",
		"cycle_id", cycle.ID,
		"instance_id", cycle.InstanceID,
		"status", cycle.Status,
		"clients_processed", cycle.ClientsProcessed,
		"clients_failed", cycle.ClientsFailed,
		"in_review", cycle.TransactionsInReview)
	return nil
}

// ReviewRequested records the review request for the client's contacts.
func (n *LogNotifier) ReviewRequested(_ context.Context, client model.Client, txn model.Transaction, reason string) error {
	slog.Info("notification: review requested",
		"client_id", client.ID,
		"recipients", client.NotifyEmails,
		"transaction_id", txn.ID,
		"amount", txn.Amount,
		"reason", reason)
	return nil
}

// LogFeedback records category feedback in the log. Used when no
// learning collaborator is configured.
type LogFeedback struct{}

// CategoryFeedback implements service.FeedbackSink.
func (LogFeedback) CategoryFeedback(_ context.Context, fb service.CategoryFeedback) error {
	slog.Info("category feedback",
		"transaction_id", fb.TransactionID,
		"category_id", fb.CategoryID,
		"category", fb.CategoryName)
	return nil
}
