// Package queue defines the stage message schemas and an in-memory
// at-least-once broker. One queue exists per pipeline stage; every
// message may be redelivered, so consumers must be idempotent.
package queue

import (
	"encoding/json"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fechamento/internal/common"
	"fechamento/internal/model"
)

// Stage queue names.
const (
	QueueCapture  = "fechamento.capture"
	QueueClassify = "fechamento.classify"
	QueueSync     = "fechamento.sync"
	QueueReview   = "fechamento.review"
)

// Review message kinds ("tipo" field).
const (
	ReviewClassification = "classificacao"
	ReviewAuthorization  = "autorizacao"
)

// Sync actions requested by the classify/review stages. The reconciler
// may still downgrade a create to a skip when the remote record exists.
const (
	ActionCreate = "create"
	ActionUpdate = "update"
)

// Envelope carries the fields common to every stage message.
type Envelope struct {
	Timestamp time.Time `json:"timestamp" validate:"required"`
	MessageID string    `json:"messageId" validate:"required"`
	CycleID   string    `json:"cycleId" validate:"required"`
	ClientID  string    `json:"clientId" validate:"required"`
}

// NewEnvelope creates an envelope with a fresh message id.
func NewEnvelope(cycleID, clientID string) Envelope {
	return Envelope{
		MessageID: uuid.New().String(),
		CycleID:   cycleID,
		ClientID:  clientID,
		Timestamp: time.Now().UTC(),
	}
}

// CaptureMessage asks the capture stage to pull transactions for one
// client from one external source.
type CaptureMessage struct {
	Envelope
	StartDate    *time.Time `json:"startDate,omitempty"`
	EndDate      *time.Time `json:"endDate,omitempty"`
	Source       string     `json:"source" validate:"required"`
	ForceRefresh bool       `json:"forceRefresh,omitempty"`
}

// ClassifyMessage asks the classify stage to categorize one transaction.
type ClassifyMessage struct {
	Envelope
	TransactionID string          `json:"transactionId" validate:"required"`
	Descricao     string          `json:"descricao" validate:"required"`
	Tipo          string          `json:"tipo" validate:"required,oneof=pagamento recebimento"`
	Contraparte   string          `json:"contraparte,omitempty"`
	Valor         decimal.Decimal `json:"valor"`
}

// SyncMessage asks the sync stage to push one transaction to its
// destination system.
type SyncMessage struct {
	Envelope
	DataVencimento time.Time       `json:"dataVencimento" validate:"required"`
	TransactionID  string          `json:"transactionId" validate:"required"`
	Destination    string          `json:"destination" validate:"required"`
	Action         string          `json:"action" validate:"required,oneof=create update"`
	Descricao      string          `json:"descricao" validate:"required"`
	CategoriaID    string          `json:"categoriaId,omitempty"`
	Contraparte    string          `json:"contraparte,omitempty"`
	Valor          decimal.Decimal `json:"valor"`
}

// ReviewMessage routes an ambiguous or high-stakes transaction to the
// review gate instead of the next stage.
type ReviewMessage struct {
	Envelope
	TransactionID      string  `json:"transactionId" validate:"required"`
	Tipo               string  `json:"tipo" validate:"required,oneof=classificacao autorizacao"`
	Motivo             string  `json:"motivo" validate:"required"`
	CategoriaSugerida  string  `json:"categoriaSugerida,omitempty"`
	CategoriaSugeridaID string `json:"categoriaSugeridaId,omitempty"`
	Confianca          float64 `json:"confianca,omitempty"`
}

// NewSyncMessage builds the sync-stage message for one transaction. The
// requested action follows from whether the transaction already carries
// an external id for the destination.
func NewSyncMessage(cycleID string, txn model.Transaction, destination string) SyncMessage {
	action := ActionCreate
	if _, ok := txn.ExternalRef(destination); ok {
		action = ActionUpdate
	}
	msg := SyncMessage{
		Envelope:       NewEnvelope(cycleID, txn.ClientID),
		TransactionID:  txn.ID,
		Destination:    destination,
		Action:         action,
		Descricao:      txn.Description,
		Valor:          txn.Amount,
		DataVencimento: txn.DueDate,
		Contraparte:    txn.Counterparty,
	}
	if txn.Category != nil {
		msg.CategoriaID = txn.Category.ID
	}
	return msg
}

var validate = validator.New()

// Encode marshals a message for publishing.
func Encode(msg any) ([]byte, error) {
	return json.Marshal(msg)
}

// Decode unmarshals and validates one delivery. A payload that fails
// either step is a validation error and must not be retried.
func Decode[T any](payload []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, common.NewValidationError("malformed message", err)
	}
	if err := validate.Struct(msg); err != nil {
		return msg, common.NewValidationError("invalid message", err)
	}
	return msg, nil
}
