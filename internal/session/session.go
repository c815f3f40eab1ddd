package session

import (
	"sync"
	"time"

	"github.com/rijalghodi/qlaris-sub000/domain"
	"go.uber.org/zap"
)

// Session is the order of one checkout terminal: an insertion-ordered list of
// lines with at most one line per product, plus the selected catalog
// category and the line currently staged for editing.
type Session struct {
	mu         sync.RWMutex
	terminalID string
	items      []domain.OrderItem
	category   string
	staged     *domain.OrderItem
	lastActive time.Time
	logger     *zap.Logger
}

// New creates an empty session for the given terminal
func New(terminalID string, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Session{
		terminalID: terminalID,
		items:      make([]domain.OrderItem, 0),
		lastActive: time.Now(),
		logger:     logger.With(zap.String("terminal_id", terminalID)),
	}
}

func (s *Session) TerminalID() string {
	return s.terminalID
}

// IncrementOrAdd adds quantity to the product's line, appending a new line
// when there is none. It does not enforce stock; quantities below 1 are ignored.
func (s *Session) IncrementOrAdd(product domain.ProductSnapshot, quantity int) {
	if quantity < 1 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexOf(product.ID); i >= 0 {
		s.items[i].Quantity += quantity
		s.logger.Debug("line incremented",
			zap.String("product_id", product.ID), zap.Int("quantity", s.items[i].Quantity))
	} else {
		s.items = append(s.items, domain.OrderItem{Product: product, Quantity: quantity})
		s.logger.Debug("line added", zap.String("product_id", product.ID), zap.Int("quantity", quantity))
	}
	s.touch()
}

// SetQuantity replaces the product's quantity, adding the line if missing.
// A quantity of 0 or less removes the line.
func (s *Session) SetQuantity(product domain.ProductSnapshot, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		s.remove(product.ID)
		return
	}
	if i := s.indexOf(product.ID); i >= 0 {
		s.items[i].Quantity = quantity
	} else {
		s.items = append(s.items, domain.OrderItem{Product: product, Quantity: quantity})
	}
	s.logger.Debug("line set", zap.String("product_id", product.ID), zap.Int("quantity", quantity))
	s.touch()
}

// UpdateQuantity sets the quantity of an existing line. Unknown products are
// a no-op; a quantity of 0 or less removes the line.
func (s *Session) UpdateQuantity(productID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity <= 0 {
		s.remove(productID)
		return
	}
	i := s.indexOf(productID)
	if i < 0 {
		return
	}
	s.items[i].Quantity = quantity
	s.logger.Debug("line updated", zap.String("product_id", productID), zap.Int("quantity", quantity))
	s.touch()
}

func (s *Session) RemoveItem(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(productID)
}

func (s *Session) ClearItems() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make([]domain.OrderItem, 0)
	s.logger.Debug("order cleared")
	s.touch()
}

// Items returns a copy of the lines in insertion order.
func (s *Session) Items() []domain.OrderItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]domain.OrderItem, len(s.items))
	copy(items, s.items)
	return items
}

func (s *Session) Item(productID string) (domain.OrderItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexOf(productID); i >= 0 {
		return s.items[i], true
	}
	return domain.OrderItem{}, false
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Total is the sum of line subtotals, recomputed on every call.
func (s *Session) Total() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for _, item := range s.items {
		total += item.Subtotal()
	}
	return total
}

// ItemCount is the sum of line quantities.
func (s *Session) ItemCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, item := range s.items {
		count += item.Quantity
	}
	return count
}

// SetSelectedCategory sets the catalog filter; "" selects all categories.
func (s *Session) SetSelectedCategory(categoryID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.category = categoryID
	s.touch()
}

func (s *Session) SelectedCategory() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.category
}

// Stage puts item into the edit slot; nil empties it.
func (s *Session) Stage(item *domain.OrderItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if item == nil {
		s.staged = nil
		return
	}
	staged := *item
	s.staged = &staged
}

func (s *Session) Staged() (domain.OrderItem, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.staged == nil {
		return domain.OrderItem{}, false
	}
	return *s.staged, true
}

func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

// must be called with s.mu held
func (s *Session) indexOf(productID string) int {
	for i := range s.items {
		if s.items[i].Product.ID == productID {
			return i
		}
	}
	return -1
}

// must be called with s.mu held
func (s *Session) remove(productID string) {
	i := s.indexOf(productID)
	if i < 0 {
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	s.logger.Debug("line removed", zap.String("product_id", productID))
	s.touch()
}

func (s *Session) touch() {
	s.lastActive = time.Now()
}
