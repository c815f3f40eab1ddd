package domain

// OrderItem is one cart line. Quantity is at least 1 while the line exists.
type OrderItem struct {
	Product  ProductSnapshot `json:"product"`
	Quantity int             `json:"quantity"`
}

func (i OrderItem) Subtotal() int64 {
	return int64(i.Quantity) * i.Product.Price
}
