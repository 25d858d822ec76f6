package storage

import (
	"context"
	"fmt"

	"fechamento/internal/model"
)

func validateContext(ctx context.Context) error {
	if ctx == nil {
		return fmt.Errorf("context cannot be nil")
	}
	return ctx.Err()
}

func validateString(value, name string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	return nil
}

func validateTransaction(txn *model.Transaction) error {
	if txn == nil {
		return fmt.Errorf("transaction cannot be nil")
	}
	if err := validateString(txn.ID, "transaction id"); err != nil {
		return err
	}
	if err := validateString(txn.ClientID, "transaction client id"); err != nil {
		return err
	}
	if !txn.Status.Valid() {
		return fmt.Errorf("transaction %s has invalid status %q", txn.ID, txn.Status)
	}
	return nil
}

func validateCycle(cycle *model.Cycle) error {
	if cycle == nil {
		return fmt.Errorf("cycle cannot be nil")
	}
	if err := validateString(cycle.ID, "cycle id"); err != nil {
		return err
	}
	if err := validateString(cycle.InstanceID, "cycle instance id"); err != nil {
		return err
	}
	if !cycle.Status.Valid() {
		return fmt.Errorf("cycle %s has invalid status %q", cycle.ID, cycle.Status)
	}
	return nil
}
