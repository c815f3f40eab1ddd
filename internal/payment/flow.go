// Package payment holds a single payment attempt against an order session:
// the received amount, its derived change and quick-pick suggestions, and
// the commit to the transaction service.
package payment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rijalghodi/qlaris-sub000/domain"
	"github.com/rijalghodi/qlaris-sub000/internal/money"
	"github.com/rijalghodi/qlaris-sub000/internal/session"
)

const defaultCommitTimeout = 15 * time.Second

type TransactionCreator interface {
	CreateTransaction(ctx context.Context, req domain.CreateTransactionRequest) (*domain.Transaction, error)
}

type Option func(*Flow)

func WithCommitTimeout(d time.Duration) Option {
	return func(f *Flow) {
		if d > 0 {
			f.commitTimeout = d
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(f *Flow) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// Flow is safe for concurrent use. Submit runs the remote call without
// holding the lock; Pending reports whether one is in flight.
type Flow struct {
	mu       sync.Mutex
	session  *session.Session
	creator  TransactionCreator
	group    singleflight.Group
	logger   *zap.Logger
	key      string
	total    int64
	received *int64
	inflight int
	closed   bool
	result   *domain.Transaction

	commitTimeout time.Duration
}

// Preview is the locally computed view of the attempt. The change shown here
// is never the record of truth; the settled transaction carries that.
type Preview struct {
	Total             int64
	Received          *int64
	IsInputEmpty      bool
	EffectiveReceived int64
	Change            int64
	Suggestions       []int64
	Insufficient      bool
}

// Open starts an attempt. The total is copied from the session now, the
// received amount starts absent and a fresh idempotency key is generated.
func Open(s *session.Session, creator TransactionCreator, opts ...Option) *Flow {
	f := &Flow{
		session:       s,
		creator:       creator,
		logger:        zap.NewNop(),
		key:           uuid.NewString(),
		total:         s.Total(),
		commitTimeout: defaultCommitTimeout,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Flow) IdempotencyKey() string {
	return f.key
}

func (f *Flow) Total() int64 {
	return f.total
}

func (f *Flow) SetReceived(amount int64) error {
	if amount < 0 {
		return domain.ErrInvalidAmount
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutableLocked(); err != nil {
		return err
	}
	f.received = &amount
	return nil
}

func (f *Flow) ClearReceived() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mutableLocked(); err != nil {
		return err
	}
	f.received = nil
	return nil
}

func (f *Flow) Received() (int64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.received == nil {
		return 0, false
	}
	return *f.received, true
}

// IsInputEmpty is true when no amount or 0 was entered, meaning exact payment.
func (f *Flow) IsInputEmpty() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.isInputEmptyLocked()
}

func (f *Flow) EffectiveReceived() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.effectiveLocked()
}

func (f *Flow) Change() int64 {
	return money.Change(f.total, f.EffectiveReceived())
}

func (f *Flow) Suggestions() []int64 {
	return money.Suggest(f.total)
}

func (f *Flow) Insufficient() bool {
	return f.EffectiveReceived() < f.total
}

func (f *Flow) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.inflight > 0
}

func (f *Flow) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *Flow) Preview() Preview {
	f.mu.Lock()
	defer f.mu.Unlock()

	effective := f.effectiveLocked()
	p := Preview{
		Total:             f.total,
		IsInputEmpty:      f.isInputEmptyLocked(),
		EffectiveReceived: effective,
		Change:            money.Change(f.total, effective),
		Suggestions:       money.Suggest(f.total),
		Insufficient:      effective < f.total,
	}
	if f.received != nil {
		v := *f.received
		p.Received = &v
	}
	return p
}

func (f *Flow) Validate() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateLocked()
}

// Submit sends the attempt to the transaction service. Concurrent submits of
// the same attempt share one remote call, and a retry after failure reuses
// the idempotency key. On success the order is cleared and the flow closes;
// on failure the entered amount and the order are kept.
func (f *Flow) Submit(ctx context.Context) (*domain.Transaction, error) {
	f.mu.Lock()
	if f.closed {
		tx := f.result
		f.mu.Unlock()
		if tx != nil {
			return tx, nil
		}
		return nil, domain.ErrFlowClosed
	}
	if err := f.validateLocked(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	req := f.requestLocked()
	f.inflight++
	f.mu.Unlock()

	v, err, shared := f.group.Do(f.key, func() (interface{}, error) {
		commitCtx, cancel := context.WithTimeout(ctx, f.commitTimeout)
		defer cancel()
		return f.creator.CreateTransaction(commitCtx, req)
	})

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--

	if err != nil {
		f.logger.Warn("transaction commit failed",
			zap.String("terminal_id", f.session.TerminalID()),
			zap.String("idempotency_key", f.key),
			zap.Error(err))
		return nil, fmt.Errorf("%w: %w", domain.ErrTransactionCommitFailed, err)
	}

	// without a server record there is no receipt, so the order is kept
	// for a retry under the same key
	tx, _ := v.(*domain.Transaction)
	if tx == nil || tx.ID == "" {
		f.logger.Warn("transaction commit returned no record",
			zap.String("terminal_id", f.session.TerminalID()),
			zap.String("idempotency_key", f.key))
		return nil, fmt.Errorf("%w: response carries no transaction", domain.ErrTransactionCommitFailed)
	}
	if !f.closed {
		f.session.ClearItems()
		f.closed = true
		f.result = tx
		f.logger.Info("transaction settled",
			zap.String("terminal_id", f.session.TerminalID()),
			zap.String("transaction_id", tx.ID),
			zap.String("invoice_number", tx.InvoiceNumber),
			zap.Bool("shared", shared))
	}
	return f.result, nil
}

// Cancel discards the attempt. It is refused while a commit is in flight.
func (f *Flow) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inflight > 0 {
		return domain.ErrCommitInProgress
	}
	f.closed = true
	return nil
}

func (f *Flow) mutableLocked() error {
	if f.closed {
		return domain.ErrFlowClosed
	}
	if f.inflight > 0 {
		return domain.ErrCommitInProgress
	}
	return nil
}

func (f *Flow) isInputEmptyLocked() bool {
	return f.received == nil || *f.received == 0
}

func (f *Flow) effectiveLocked() int64 {
	if f.isInputEmptyLocked() {
		return f.total
	}
	return *f.received
}

func (f *Flow) validateLocked() error {
	if f.session.Len() == 0 {
		return domain.ErrEmptyOrder
	}
	if f.effectiveLocked() < f.total {
		return domain.ErrInsufficientAmount
	}
	return nil
}

func (f *Flow) requestLocked() domain.CreateTransactionRequest {
	items := f.session.Items()
	req := domain.CreateTransactionRequest{
		Items:          make([]domain.TransactionItemRequest, 0, len(items)),
		ReceivedAmount: f.effectiveLocked(),
		IsCashPaid:     true,
		IdempotencyKey: f.key,
	}
	for _, item := range items {
		req.Items = append(req.Items, domain.TransactionItemRequest{
			ProductID: item.Product.ID,
			Quantity:  item.Quantity,
		})
	}
	return req
}
