package checkout

import (
	"time"

	"github.com/rijalghodi/qlaris-sub000/domain"
	"github.com/rijalghodi/qlaris-sub000/internal/money"
	"github.com/rijalghodi/qlaris-sub000/internal/payment"
)

type BrowseView struct {
	Products         []domain.ProductSnapshot
	Categories       []domain.Category
	SelectedCategory string
	Search           string
	FetchedAt        time.Time
}

type OrderLine struct {
	Product  domain.ProductSnapshot
	Quantity int
	Subtotal int64
}

type OrderView struct {
	State     domain.FlowState
	Lines     []OrderLine
	Total     int64
	ItemCount int
}

func (v OrderView) FormattedTotal() string {
	return money.Format(v.Total)
}

type AdjustmentView struct {
	Product      domain.ProductSnapshot
	Staged       int
	CartQuantity int
	InCart       bool
	CanIncrement bool
	CanDecrement bool
	Subtotal     int64
	// ExceedsStock marks a cart line above the stock limit. Staged starts
	// clamped, so committing lowers the line.
	ExceedsStock bool
}

type PaymentView struct {
	payment.Preview
	Pending bool
}

func orderView(state domain.FlowState, items []domain.OrderItem) OrderView {
	v := OrderView{State: state, Lines: make([]OrderLine, 0, len(items))}
	for _, item := range items {
		subtotal := item.Subtotal()
		v.Lines = append(v.Lines, OrderLine{Product: item.Product, Quantity: item.Quantity, Subtotal: subtotal})
		v.Total += subtotal
		v.ItemCount += item.Quantity
	}
	return v
}
