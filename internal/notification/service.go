package notification

import (
	"context"

	"caisse/internal/domain"
	"caisse/pkg/logger"
)

// Event types emitted by the engine.
const (
	EventTransactionCompleted = "TRANSACTION_COMPLETED"
	EventTransactionFailed    = "TRANSACTION_FAILED"
)

// Event is the payload handed to the notification collaborator. Delivery is
// fire-and-forget: a delivery failure never affects the financial result
// already committed.
type Event struct {
	Type               string                   `json:"type"`
	TransactionID      string                   `json:"transaction_id"`
	TransactionType    domain.TransactionType   `json:"transaction_type"`
	Amount             string                   `json:"amount"`
	Fee                string                   `json:"fee"`
	SourceAccount      int64                    `json:"source_account"`
	DestinationAccount *int64                   `json:"destination_account,omitempty"`
	Status             domain.TransactionStatus `json:"status"`
	ErrorCode          string                   `json:"error_code,omitempty"`
}

// Service delivers engine events to the notification collaborator.
type Service interface {
	Emit(ctx context.Context, event Event) error
}

// DefaultService logs events; a production deployment swaps in a transport
// that pushes to the messaging collaborator.
type DefaultService struct {
	logger logger.Logger
}

func NewDefaultService(log logger.Logger) *DefaultService {
	return &DefaultService{logger: log}
}

func (s *DefaultService) Emit(ctx context.Context, event Event) error {
	s.logger.Info("Transaction event emitted", map[string]interface{}{
		"event":          event.Type,
		"transaction_id": event.TransactionID,
		"type":           string(event.TransactionType),
		"amount":         event.Amount,
		"fee":            event.Fee,
		"source":         event.SourceAccount,
		"status":         string(event.Status),
		"error_code":     event.ErrorCode,
	})
	return nil
}

// FromTransaction builds the outbound event for a terminal transaction.
func FromTransaction(tx *domain.Transaction) Event {
	eventType := EventTransactionCompleted
	errorCode := ""
	if tx.Status == domain.TransactionStatusFailed {
		eventType = EventTransactionFailed
		if tx.ErrorCode != nil {
			errorCode = *tx.ErrorCode
		}
	}
	return Event{
		Type:               eventType,
		TransactionID:      tx.ID,
		TransactionType:    tx.Type,
		Amount:             tx.Amount.String(),
		Fee:                tx.Fee.String(),
		SourceAccount:      tx.SourceAccount,
		DestinationAccount: tx.DestinationAccount,
		Status:             tx.Status,
		ErrorCode:          errorCode,
	}
}
