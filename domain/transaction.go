package domain

import "time"

type TransactionItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// CreateTransactionRequest is the single commit sent to the Transaction service.
// IdempotencyKey travels as a request header, not in the body.
type CreateTransactionRequest struct {
	Items          []TransactionItemRequest `json:"items"`
	ReceivedAmount int64                    `json:"receivedAmount"`
	IsCashPaid     bool                     `json:"isCashPaid"`
	IdempotencyKey string                   `json:"-"`
}

type TransactionItem struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId,omitempty"`
	ProductName string `json:"productName"`
	Price       int64  `json:"price"`
	Quantity    int    `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
}

// Transaction is the server record of a committed sale. Its monetary
// fields are authoritative over anything computed locally.
type Transaction struct {
	ID             string            `json:"id"`
	InvoiceNumber  string            `json:"invoiceNumber"`
	TotalAmount    int64             `json:"totalAmount"`
	ReceivedAmount int64             `json:"receivedAmount"`
	ChangeAmount   int64             `json:"changeAmount"`
	Status         string            `json:"status"`
	PaidAt         *time.Time        `json:"paidAt,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	Items          []TransactionItem `json:"items"`
}
