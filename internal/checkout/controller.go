// Package checkout drives one terminal through browsing, item adjustment,
// payment and the settled receipt as an explicit state machine.
package checkout

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rijalghodi/qlaris-sub000/domain"
	"github.com/rijalghodi/qlaris-sub000/internal/adjust"
	"github.com/rijalghodi/qlaris-sub000/internal/catalog"
	"github.com/rijalghodi/qlaris-sub000/internal/payment"
	"github.com/rijalghodi/qlaris-sub000/internal/session"
)

const defaultPublishTimeout = 5 * time.Second

type CatalogReader interface {
	Snapshot(ctx context.Context) (*domain.CatalogSnapshot, error)
}

type SettlementPublisher interface {
	PublishSettlement(ctx context.Context, terminalID string, tx *domain.Transaction) error
}

type ReceiptLoader interface {
	GetTransaction(ctx context.Context, id string) (*domain.Transaction, error)
}

type Option func(*Controller)

func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithCommitTimeout(d time.Duration) Option {
	return func(c *Controller) { c.commitTimeout = d }
}

func WithPublishTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.publishTimeout = d
		}
	}
}

// WithReceiptLoader makes Receipt reload the settled transaction from the
// server instead of returning the commit response.
func WithReceiptLoader(loader ReceiptLoader) Option {
	return func(c *Controller) { c.receipts = loader }
}

// Controller owns the order session of one terminal. All methods are safe
// for concurrent use; the remote commit runs without holding the lock.
type Controller struct {
	mu         sync.Mutex
	terminalID string
	session    *session.Session
	catalog    CatalogReader
	creator    payment.TransactionCreator
	publisher  SettlementPublisher
	receipts   ReceiptLoader
	logger     *zap.Logger

	state   domain.FlowState
	search  string
	adjust  *adjust.Flow
	pay     *payment.Flow
	receipt *domain.Transaction
	retired bool

	commitTimeout  time.Duration
	publishTimeout time.Duration
	background     sync.WaitGroup
}

func NewController(terminalID string, catalog CatalogReader, creator payment.TransactionCreator, publisher SettlementPublisher, opts ...Option) *Controller {
	c := &Controller{
		terminalID:     terminalID,
		catalog:        catalog,
		creator:        creator,
		publisher:      publisher,
		logger:         zap.NewNop(),
		state:          domain.FlowStateBrowsing,
		publishTimeout: defaultPublishTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With(zap.String("terminal_id", terminalID))
	c.session = session.New(terminalID, c.logger)
	return c
}

func (c *Controller) TerminalID() string {
	return c.terminalID
}

func (c *Controller) State() domain.FlowState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Idle reports whether the controller holds no work: an empty order and no
// open dialog.
func (c *Controller) Idle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idleLocked()
}

// Retire marks an idle controller as evicted and reports whether it did.
// A retired controller refuses new work with ErrSessionEvicted, so a caller
// still holding it looks the terminal up again instead of writing into an
// orphan.
func (c *Controller) Retire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.idleLocked() {
		return false
	}
	c.retired = true
	return true
}

func (c *Controller) idleLocked() bool {
	return c.session.Len() == 0 &&
		(c.state == domain.FlowStateBrowsing || c.state == domain.FlowStateSettled)
}

func (c *Controller) LastActivity() time.Time {
	return c.session.LastActivity()
}

// Wait blocks until background settlement publishing has finished.
func (c *Controller) Wait() {
	c.background.Wait()
}

// --- browsing ---

func (c *Controller) Browse(ctx context.Context) (BrowseView, error) {
	snapshot, err := c.catalog.Snapshot(ctx)
	if err != nil {
		c.logger.Warn("catalog unavailable", zap.Error(err))
		return BrowseView{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	category := c.session.SelectedCategory()
	return BrowseView{
		Products:         catalog.Filter(snapshot.Products, category, c.search),
		Categories:       snapshot.Categories,
		SelectedCategory: category,
		Search:           c.search,
		FetchedAt:        snapshot.FetchedAt,
	}, nil
}

func (c *Controller) SetSearch(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		return domain.ErrSessionEvicted
	}
	c.search = text
	return nil
}

// SelectCategory sets the catalog filter; "" selects all categories.
func (c *Controller) SelectCategory(categoryID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		return domain.ErrSessionEvicted
	}
	c.session.SetSelectedCategory(categoryID)
	return nil
}

func (c *Controller) QuickAdd(ctx context.Context, productID string, quantity int) (OrderView, error) {
	if quantity < 1 {
		return OrderView{}, domain.ErrInvalidQuantity
	}
	product, err := c.lookup(ctx, func(products []domain.ProductSnapshot) (domain.ProductSnapshot, bool) {
		return catalog.FindByID(products, productID)
	})
	if err != nil {
		return OrderView{}, err
	}
	return c.mutateOrder(func() {
		c.session.IncrementOrAdd(product, quantity)
	})
}

// QuickAddBarcode adds one unit of the product carrying barcode.
func (c *Controller) QuickAddBarcode(ctx context.Context, barcode string) (OrderView, error) {
	product, err := c.lookup(ctx, func(products []domain.ProductSnapshot) (domain.ProductSnapshot, bool) {
		return catalog.FindByBarcode(products, barcode)
	})
	if err != nil {
		return OrderView{}, err
	}
	return c.mutateOrder(func() {
		c.session.IncrementOrAdd(product, 1)
	})
}

// UpdateQuantity sets a line's quantity; 0 or less removes it. Unknown
// products are ignored.
func (c *Controller) UpdateQuantity(productID string, quantity int) (OrderView, error) {
	return c.mutateOrder(func() {
		c.session.UpdateQuantity(productID, quantity)
	})
}

func (c *Controller) RemoveItem(productID string) (OrderView, error) {
	return c.mutateOrder(func() {
		c.session.RemoveItem(productID)
	})
}

func (c *Controller) ClearItems() (OrderView, error) {
	return c.mutateOrder(c.session.ClearItems)
}

func (c *Controller) Order() OrderView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orderViewLocked()
}

// --- item adjustment ---

// OpenAdjustment stages productID for editing, using the snapshot held by
// its cart line when there is one and the catalog otherwise.
func (c *Controller) OpenAdjustment(ctx context.Context, productID string) (AdjustmentView, error) {
	if err := c.checkCanOpen(domain.FlowStateItemAdjust); err != nil {
		return AdjustmentView{}, err
	}

	product, inCart := c.cartProduct(productID)
	if !inCart {
		var err error
		product, err = c.lookup(ctx, func(products []domain.ProductSnapshot) (domain.ProductSnapshot, bool) {
			return catalog.FindByID(products, productID)
		})
		if err != nil {
			return AdjustmentView{}, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		return AdjustmentView{}, domain.ErrSessionEvicted
	}
	if err := c.leaveSettledLocked(); err != nil {
		return AdjustmentView{}, err
	}
	if err := c.transitionLocked(domain.FlowStateItemAdjust); err != nil {
		return AdjustmentView{}, err
	}
	c.adjust = adjust.Open(c.session, product)
	c.logger.Debug("adjustment opened", zap.String("product_id", productID), zap.Int("staged", c.adjust.Staged()))
	return c.adjustmentViewLocked(), nil
}

func (c *Controller) Adjustment() (AdjustmentView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.adjust == nil {
		return AdjustmentView{}, domain.ErrFlowClosed
	}
	return c.adjustmentViewLocked(), nil
}

func (c *Controller) IncrementStaged() (AdjustmentView, error) {
	return c.withAdjustment(func(f *adjust.Flow) { f.Increment() })
}

func (c *Controller) DecrementStaged() (AdjustmentView, error) {
	return c.withAdjustment(func(f *adjust.Flow) { f.Decrement() })
}

// SetStaged applies a typed-in quantity, clamped into the stock bound.
func (c *Controller) SetStaged(quantity int) (AdjustmentView, error) {
	return c.withAdjustment(func(f *adjust.Flow) { f.SetQuantity(quantity) })
}

func (c *Controller) CommitAdjustment() (OrderView, error) {
	return c.closeAdjustment((*adjust.Flow).Commit)
}

func (c *Controller) RemoveAdjusted() (OrderView, error) {
	return c.closeAdjustment((*adjust.Flow).Remove)
}

func (c *Controller) CancelAdjustment() (OrderView, error) {
	return c.closeAdjustment(func(f *adjust.Flow) error {
		f.Cancel()
		return nil
	})
}

// --- payment ---

func (c *Controller) OpenPayment() (PaymentView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.retired {
		return PaymentView{}, domain.ErrSessionEvicted
	}
	if c.state != domain.FlowStateSettled && !domain.CanTransitionTo(c.state, domain.FlowStatePaymentOpen) {
		return PaymentView{}, domain.ErrIllegalTransition
	}
	if c.session.Len() == 0 {
		return PaymentView{}, domain.ErrEmptyOrder
	}
	if err := c.leaveSettledLocked(); err != nil {
		return PaymentView{}, err
	}
	if err := c.transitionLocked(domain.FlowStatePaymentOpen); err != nil {
		return PaymentView{}, err
	}
	c.pay = payment.Open(c.session, c.creator,
		payment.WithCommitTimeout(c.commitTimeout),
		payment.WithLogger(c.logger))
	c.logger.Debug("payment opened", zap.Int64("total", c.pay.Total()))
	return c.paymentViewLocked(), nil
}

func (c *Controller) PaymentPreview() (PaymentView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pay == nil {
		return PaymentView{}, domain.ErrFlowClosed
	}
	return c.paymentViewLocked(), nil
}

func (c *Controller) SetReceived(amount int64) (PaymentView, error) {
	return c.withPayment(func(f *payment.Flow) error { return f.SetReceived(amount) })
}

func (c *Controller) ClearReceived() (PaymentView, error) {
	return c.withPayment((*payment.Flow).ClearReceived)
}

// SubmitPayment commits the sale. On success the order is cleared, the
// controller moves to SETTLED and the settlement is published in the
// background. On failure the payment stays open with its amount intact.
func (c *Controller) SubmitPayment(ctx context.Context) (*domain.Transaction, error) {
	c.mu.Lock()
	if c.state != domain.FlowStatePaymentOpen || c.pay == nil {
		// a duplicate submit arriving after settlement gets the same receipt
		if c.state == domain.FlowStateSettled && c.receipt != nil {
			tx := c.receipt
			c.mu.Unlock()
			return tx, nil
		}
		c.mu.Unlock()
		return nil, domain.ErrIllegalTransition
	}
	flow := c.pay
	c.mu.Unlock()

	tx, err := flow.Submit(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	settledNow := c.pay == flow && c.state == domain.FlowStatePaymentOpen
	if settledNow {
		if err := c.transitionLocked(domain.FlowStateSettled); err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.pay = nil
		c.receipt = tx
	}
	c.mu.Unlock()

	if settledNow {
		c.logger.Info("order settled",
			zap.String("transaction_id", tx.ID),
			zap.String("invoice_number", tx.InvoiceNumber),
			zap.Int64("total_amount", tx.TotalAmount))
		c.publish(tx)
	}
	return tx, nil
}

func (c *Controller) CancelPayment() (OrderView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.FlowStatePaymentOpen || c.pay == nil {
		return OrderView{}, domain.ErrIllegalTransition
	}
	if err := c.pay.Cancel(); err != nil {
		return OrderView{}, err
	}
	if err := c.transitionLocked(domain.FlowStateBrowsing); err != nil {
		return OrderView{}, err
	}
	c.pay = nil
	return c.orderViewLocked(), nil
}

// --- settled ---

// Receipt returns the last settled transaction. With a receipt loader the
// server copy is returned, falling back to the commit response when the
// lookup fails.
func (c *Controller) Receipt(ctx context.Context) (*domain.Transaction, error) {
	c.mu.Lock()
	receipt := c.receipt
	c.mu.Unlock()

	if receipt == nil {
		return nil, domain.ErrIllegalTransition
	}
	if c.receipts == nil {
		return receipt, nil
	}

	fresh, err := c.receipts.GetTransaction(ctx, receipt.ID)
	if err != nil {
		c.logger.Warn("receipt reload failed", zap.String("transaction_id", receipt.ID), zap.Error(err))
		return receipt, nil
	}
	return fresh, nil
}

// StartNewOrder dismisses the receipt. It is a no-op while browsing.
func (c *Controller) StartNewOrder() (OrderView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == domain.FlowStateBrowsing {
		return c.orderViewLocked(), nil
	}
	if err := c.transitionLocked(domain.FlowStateBrowsing); err != nil {
		return OrderView{}, err
	}
	c.receipt = nil
	return c.orderViewLocked(), nil
}

// --- internals ---

func (c *Controller) transitionLocked(to domain.FlowState) error {
	if !domain.CanTransitionTo(c.state, to) {
		c.logger.Debug("transition refused", zap.Stringer("from", c.state), zap.Stringer("to", to))
		return domain.ErrIllegalTransition
	}
	c.logger.Debug("transition", zap.Stringer("from", c.state), zap.Stringer("to", to))
	c.state = to
	return nil
}

// leaveSettledLocked returns a settled controller to browsing so the next
// order can start. The receipt stays readable until replaced.
func (c *Controller) leaveSettledLocked() error {
	if c.state != domain.FlowStateSettled {
		return nil
	}
	return c.transitionLocked(domain.FlowStateBrowsing)
}

func (c *Controller) checkCanOpen(to domain.FlowState) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		return domain.ErrSessionEvicted
	}
	if c.state == domain.FlowStateSettled {
		return nil
	}
	if !domain.CanTransitionTo(c.state, to) {
		return domain.ErrIllegalTransition
	}
	return nil
}

func (c *Controller) mutateOrder(fn func()) (OrderView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.retired {
		return OrderView{}, domain.ErrSessionEvicted
	}
	if err := c.leaveSettledLocked(); err != nil {
		return OrderView{}, err
	}
	if c.state != domain.FlowStateBrowsing {
		return OrderView{}, domain.ErrIllegalTransition
	}
	fn()
	return c.orderViewLocked(), nil
}

// lookup finds a sellable product in the current catalog snapshot.
func (c *Controller) lookup(ctx context.Context, find func([]domain.ProductSnapshot) (domain.ProductSnapshot, bool)) (domain.ProductSnapshot, error) {
	snapshot, err := c.catalog.Snapshot(ctx)
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	product, ok := find(snapshot.Products)
	if !ok || !product.IsActive {
		return domain.ProductSnapshot{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (c *Controller) cartProduct(productID string) (domain.ProductSnapshot, bool) {
	item, ok := c.session.Item(productID)
	return item.Product, ok
}

func (c *Controller) withAdjustment(fn func(*adjust.Flow)) (AdjustmentView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.FlowStateItemAdjust || c.adjust == nil {
		return AdjustmentView{}, domain.ErrIllegalTransition
	}
	fn(c.adjust)
	return c.adjustmentViewLocked(), nil
}

func (c *Controller) closeAdjustment(fn func(*adjust.Flow) error) (OrderView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.FlowStateItemAdjust || c.adjust == nil {
		return OrderView{}, domain.ErrIllegalTransition
	}
	if err := fn(c.adjust); err != nil {
		return OrderView{}, err
	}
	if err := c.transitionLocked(domain.FlowStateBrowsing); err != nil {
		return OrderView{}, err
	}
	c.adjust = nil
	return c.orderViewLocked(), nil
}

func (c *Controller) withPayment(fn func(*payment.Flow) error) (PaymentView, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != domain.FlowStatePaymentOpen || c.pay == nil {
		return PaymentView{}, domain.ErrIllegalTransition
	}
	if err := fn(c.pay); err != nil {
		return PaymentView{}, err
	}
	return c.paymentViewLocked(), nil
}

func (c *Controller) publish(tx *domain.Transaction) {
	if c.publisher == nil {
		return
	}
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.publishTimeout)
		defer cancel()
		if err := c.publisher.PublishSettlement(ctx, c.terminalID, tx); err != nil {
			c.logger.Warn("settlement publish failed", zap.String("transaction_id", tx.ID), zap.Error(err))
		}
	}()
}

func (c *Controller) orderViewLocked() OrderView {
	return orderView(c.state, c.session.Items())
}

func (c *Controller) adjustmentViewLocked() AdjustmentView {
	f := c.adjust
	v := AdjustmentView{
		Product:      f.Product(),
		Staged:       f.Staged(),
		CanIncrement: f.CanIncrement(),
		CanDecrement: f.CanDecrement(),
		Subtotal:     f.Product().Price * int64(f.Staged()),
	}
	if item, ok := c.session.Item(f.Product().ID); ok {
		v.InCart = true
		v.CartQuantity = item.Quantity
		if limit, bounded := f.Product().StockLimit(); bounded && item.Quantity > limit {
			v.ExceedsStock = true
		}
	}
	return v
}

func (c *Controller) paymentViewLocked() PaymentView {
	return PaymentView{Preview: c.pay.Preview(), Pending: c.pay.Pending()}
}
