// Package publisher announces settled sales on Kafka for downstream
// consumers such as stock and reporting.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rijalghodi/qlaris-sub000/domain"
)

const EventTypeSettled = "transaction.settled"

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type SettlementEvent struct {
	TerminalID     string                   `json:"terminal_id"`
	TransactionID  string                   `json:"transaction_id"`
	InvoiceNumber  string                   `json:"invoice_number"`
	TotalAmount    int64                    `json:"total_amount"`
	ReceivedAmount int64                    `json:"received_amount"`
	ChangeAmount   int64                    `json:"change_amount"`
	Items          []domain.TransactionItem `json:"items"`
	SettledAt      time.Time                `json:"settled_at"`
}

type KafkaPublisher struct {
	writer messageWriter
}

func NewKafkaPublisher(topic string, brokers ...string) *KafkaPublisher {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
		RequiredAcks:           kafka.RequireOne,
	}
	return &KafkaPublisher{writer: w}
}

// PublishSettlement writes one message keyed by transaction ID so every event
// for a sale lands on the same partition.
func (p *KafkaPublisher) PublishSettlement(ctx context.Context, terminalID string, tx *domain.Transaction) error {
	payload, err := json.Marshal(newSettlementEvent(terminalID, tx))
	if err != nil {
		return fmt.Errorf("marshal settlement event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(tx.ID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(EventTypeSettled)},
			{Key: "terminal_id", Value: []byte(terminalID)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("write settlement event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func newSettlementEvent(terminalID string, tx *domain.Transaction) SettlementEvent {
	settledAt := tx.CreatedAt
	if tx.PaidAt != nil {
		settledAt = *tx.PaidAt
	}
	if settledAt.IsZero() {
		settledAt = time.Now().UTC()
	}
	return SettlementEvent{
		TerminalID:     terminalID,
		TransactionID:  tx.ID,
		InvoiceNumber:  tx.InvoiceNumber,
		TotalAmount:    tx.TotalAmount,
		ReceivedAmount: tx.ReceivedAmount,
		ChangeAmount:   tx.ChangeAmount,
		Items:          tx.Items,
		SettledAt:      settledAt,
	}
}

// NopPublisher drops every event. It is used when no brokers are configured.
type NopPublisher struct{}

func (NopPublisher) PublishSettlement(context.Context, string, *domain.Transaction) error {
	return nil
}

func (NopPublisher) Close() error {
	return nil
}
