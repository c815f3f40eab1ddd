// Package adjust implements the staged quantity edit for a single product.
// A Flow is not safe for concurrent use; the checkout controller serialises it.
package adjust

import (
	"math"

	"github.com/rijalghodi/qlaris-sub000/domain"
	"github.com/rijalghodi/qlaris-sub000/internal/session"
)

type Flow struct {
	session *session.Session
	product domain.ProductSnapshot
	staged  int
	closed  bool
}

// Open stages product for editing. The staged quantity starts at the
// product's cart quantity, or 1 when it is not in the cart, clamped into the
// stock bound.
func Open(s *session.Session, product domain.ProductSnapshot) *Flow {
	staged := 1
	if item, ok := s.Item(product.ID); ok {
		staged = item.Quantity
	}
	f := &Flow{session: s, product: product}
	f.staged = f.clamp(staged)
	f.sync()
	return f
}

func (f *Flow) Product() domain.ProductSnapshot {
	return f.product
}

func (f *Flow) Staged() int {
	return f.staged
}

func (f *Flow) Closed() bool {
	return f.closed
}

func (f *Flow) CanIncrement() bool {
	if f.closed {
		return false
	}
	if limit, bounded := f.product.StockLimit(); bounded {
		return f.staged+1 <= limit
	}
	return f.staged < math.MaxInt
}

func (f *Flow) CanDecrement() bool {
	return !f.closed && f.staged > 0
}

// Increment adds one to the staged quantity. It returns false, leaving the
// value unchanged, when tracked stock would be exceeded.
func (f *Flow) Increment() bool {
	if !f.CanIncrement() {
		return false
	}
	f.staged++
	f.sync()
	return true
}

// Decrement removes one from the staged quantity, never going below 0.
func (f *Flow) Decrement() bool {
	if !f.CanDecrement() {
		return false
	}
	f.staged--
	f.sync()
	return true
}

// SetQuantity applies a typed-in quantity clamped to [0, stock] and returns
// the value actually staged.
func (f *Flow) SetQuantity(n int) int {
	if f.closed {
		return f.staged
	}
	f.staged = f.clamp(n)
	f.sync()
	return f.staged
}

// Commit writes the staged quantity to the order as an absolute value. A
// staged 0 removes the line.
func (f *Flow) Commit() error {
	if f.closed {
		return domain.ErrFlowClosed
	}
	if f.staged == 0 {
		f.session.RemoveItem(f.product.ID)
	} else {
		f.session.SetQuantity(f.product, f.staged)
	}
	f.close()
	return nil
}

// Remove deletes the product's line whatever the staged value.
func (f *Flow) Remove() error {
	if f.closed {
		return domain.ErrFlowClosed
	}
	f.session.RemoveItem(f.product.ID)
	f.close()
	return nil
}

// Cancel discards the staged value; the order is unchanged.
func (f *Flow) Cancel() {
	if f.closed {
		return
	}
	f.close()
}

func (f *Flow) clamp(n int) int {
	if n < 0 {
		return 0
	}
	if limit, bounded := f.product.StockLimit(); bounded && n > limit {
		return limit
	}
	return n
}

func (f *Flow) sync() {
	f.session.Stage(&domain.OrderItem{Product: f.product, Quantity: f.staged})
}

func (f *Flow) close() {
	f.closed = true
	f.session.Stage(nil)
}
