package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// LedgerEventMessage announces a completed ledger operation. It carries ids
// only; consumers read current state from the store.
type LedgerEventMessage struct {
	Op            string    `json:"op"`
	TransactionID string    `json:"transaction_id,omitempty"`
	AccountIDs    []string  `json:"account_ids"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLedgerEventMessage creates a new event stamped with the current time
func NewLedgerEventMessage(op, transactionID string, accountIDs []string) *LedgerEventMessage {
	return &LedgerEventMessage{
		Op:            op,
		TransactionID: transactionID,
		AccountIDs:    accountIDs,
		Timestamp:     time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON parses and validates a message
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Op == "" {
		return nil, errors.New("ledger event without op")
	}
	return &msg, nil
}
