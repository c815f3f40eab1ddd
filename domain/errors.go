package domain

import "errors"

var (
	ErrInsufficientAmount      = errors.New("insufficient amount")
	ErrTransactionCommitFailed = errors.New("transaction commit failed")
	ErrCatalogUnavailable      = errors.New("catalog unavailable")

	ErrIllegalTransition = errors.New("illegal transition of checkout flow state")
	ErrEmptyOrder        = errors.New("order is empty, nothing to pay")
	ErrFlowClosed        = errors.New("flow is already closed")
	ErrCommitInProgress  = errors.New("transaction commit is in progress")
	ErrProductNotFound   = errors.New("product not found")
	ErrInvalidQuantity   = errors.New("quantity must be greater than 0")
	ErrInvalidAmount     = errors.New("amount must not be negative")
	ErrSessionEvicted    = errors.New("terminal session was evicted")
)
