package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fechamento/internal/common"
	"fechamento/internal/model"
	"fechamento/internal/queue"
	"fechamento/internal/service"
)

// Capture pulls transactions for the message's client from its source
// system and persists the new ones with status captured. The insert is
// keyed on the duplicate-detection hash, so a redelivered capture
// message stores nothing twice. Only newly inserted rows are returned;
// a rejected re-capture carries an id that exists nowhere and must not
// reach classify.
func (r *Router) Capture(ctx context.Context, msg queue.CaptureMessage) (int, []model.Transaction, error) {
	client, err := r.storage.GetClient(ctx, msg.ClientID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return 0, nil, common.NewValidationError("unknown client", err)
		}
		return 0, nil, fmt.Errorf("load client %s: %w", msg.ClientID, err)
	}

	window := r.captureWindow(msg)
	txns, err := common.RetryValue(ctx, func() ([]model.Transaction, error) {
		return r.capture.Capture(ctx, *client, window)
	}, r.cfg.Retry)
	if err != nil {
		return 0, nil, fmt.Errorf("capture for client %s: %w", client.ID, err)
	}

	now := time.Now().UTC()
	for i := range txns {
		if txns[i].ID == "" {
			txns[i].ID = uuid.New().String()
		}
		txns[i].ClientID = client.ID
		txns[i].Status = model.StatusCaptured
		if txns[i].DueDate.IsZero() {
			txns[i].DueDate = txns[i].Date
		}
		if txns[i].Hash == "" {
			txns[i].Hash = txns[i].GenerateHash()
		}
		txns[i].CreatedAt = now
		txns[i].UpdatedAt = now
	}

	inserted, err := r.storage.SaveTransactions(ctx, txns)
	if err != nil {
		return 0, nil, fmt.Errorf("save captured transactions: %w", err)
	}
	return len(inserted), inserted, nil
}

func (r *Router) captureWindow(msg queue.CaptureMessage) service.CaptureWindow {
	window := service.CaptureWindow{ForceRefresh: msg.ForceRefresh}
	now := time.Now().UTC()
	if msg.StartDate != nil {
		window.StartDate = *msg.StartDate
	} else {
		window.StartDate = now.Add(-r.cfg.CaptureLookback)
	}
	if msg.EndDate != nil {
		window.EndDate = *msg.EndDate
	} else {
		window.EndDate = now
	}
	return window
}
