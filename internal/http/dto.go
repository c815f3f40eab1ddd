package http

import (
	"time"

	"github.com/rijalghodi/qlaris-sub000/domain"
	"github.com/rijalghodi/qlaris-sub000/internal/checkout"
	"github.com/rijalghodi/qlaris-sub000/internal/money"
)

type ProductDTO struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Price          int64  `json:"price"`
	PriceFormatted string `json:"price_formatted"`
	EnableStock    bool   `json:"enable_stock"`
	StockQty       *int   `json:"stock_qty,omitempty"`
	Unit           string `json:"unit"`
	Image          string `json:"image,omitempty"`
	CategoryID     string `json:"category_id,omitempty"`
	BarcodeValue   string `json:"barcode_value,omitempty"`
}

type CategoryDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type CatalogResponseDTO struct {
	Products         []ProductDTO  `json:"products"`
	Categories       []CategoryDTO `json:"categories"`
	SelectedCategory *string       `json:"selected_category"`
	Search           string        `json:"search"`
	FetchedAt        time.Time     `json:"fetched_at"`
}

// FilterRequestDTO updates only the fields present. A null or empty
// category_id selects all categories.
type FilterRequestDTO struct {
	CategoryID *string `json:"category_id"`
	Search     *string `json:"search"`
}

type OrderLineDTO struct {
	ProductID         string `json:"product_id"`
	Name              string `json:"name"`
	Price             int64  `json:"price"`
	Unit              string `json:"unit"`
	Quantity          int    `json:"quantity"`
	Subtotal          int64  `json:"subtotal"`
	SubtotalFormatted string `json:"subtotal_formatted"`
}

type OrderResponseDTO struct {
	State          string         `json:"state"`
	Items          []OrderLineDTO `json:"items"`
	Total          int64          `json:"total"`
	TotalFormatted string         `json:"total_formatted"`
	ItemCount      int            `json:"item_count"`
}

// AddItemRequestDTO adds by product_id, or by barcode when product_id is
// empty. quantity defaults to 1.
type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Barcode   string `json:"barcode"`
	Quantity  *int   `json:"quantity"`
}

type QuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type OpenAdjustmentRequestDTO struct {
	ProductID string `json:"product_id"`
}

type AdjustmentResponseDTO struct {
	Product           ProductDTO `json:"product"`
	Staged            int        `json:"staged_quantity"`
	CartQuantity      int        `json:"cart_quantity"`
	InCart            bool       `json:"in_cart"`
	CanIncrement      bool       `json:"can_increment"`
	CanDecrement      bool       `json:"can_decrement"`
	Subtotal          int64      `json:"subtotal"`
	SubtotalFormatted string     `json:"subtotal_formatted"`
	CartExceedsStock  bool       `json:"cart_exceeds_stock"`
}

type SuggestionDTO struct {
	Amount    int64  `json:"amount"`
	Formatted string `json:"formatted"`
}

type PaymentResponseDTO struct {
	Total                      int64           `json:"total"`
	TotalFormatted             string          `json:"total_formatted"`
	Received                   *int64          `json:"received"`
	IsInputEmpty               bool            `json:"is_input_empty"`
	EffectiveReceived          int64           `json:"effective_received"`
	EffectiveReceivedFormatted string          `json:"effective_received_formatted"`
	Change                     int64           `json:"change"`
	ChangeFormatted            string          `json:"change_formatted"`
	Insufficient               bool            `json:"insufficient"`
	Pending                    bool            `json:"pending"`
	Suggestions                []SuggestionDTO `json:"suggestions"`
}

type ReceivedRequestDTO struct {
	Amount *int64 `json:"amount"`
}

type ReceiptItemDTO struct {
	ProductID   string `json:"product_id,omitempty"`
	ProductName string `json:"product_name"`
	Price       int64  `json:"price"`
	Quantity    int    `json:"quantity"`
	Subtotal    int64  `json:"subtotal"`
}

type ReceiptResponseDTO struct {
	TransactionID           string           `json:"transaction_id"`
	InvoiceNumber           string           `json:"invoice_number"`
	Status                  string           `json:"status"`
	TotalAmount             int64            `json:"total_amount"`
	TotalAmountFormatted    string           `json:"total_amount_formatted"`
	ReceivedAmount          int64            `json:"received_amount"`
	ReceivedAmountFormatted string           `json:"received_amount_formatted"`
	ChangeAmount            int64            `json:"change_amount"`
	ChangeAmountFormatted   string           `json:"change_amount_formatted"`
	PaidAt                  *time.Time       `json:"paid_at,omitempty"`
	CreatedAt               time.Time        `json:"created_at"`
	Items                   []ReceiptItemDTO `json:"items"`
}

func toProductDTO(p domain.ProductSnapshot) ProductDTO {
	return ProductDTO{
		ID:             p.ID,
		Name:           p.Name,
		Price:          p.Price,
		PriceFormatted: money.Format(p.Price),
		EnableStock:    p.EnableStock,
		StockQty:       p.StockQty,
		Unit:           p.UnitLabel(),
		Image:          p.Image,
		CategoryID:     p.CategoryID,
		BarcodeValue:   p.BarcodeValue,
	}
}

func toCatalogDTO(v checkout.BrowseView) CatalogResponseDTO {
	dto := CatalogResponseDTO{
		Products:   make([]ProductDTO, 0, len(v.Products)),
		Categories: make([]CategoryDTO, 0, len(v.Categories)),
		Search:     v.Search,
		FetchedAt:  v.FetchedAt,
	}
	for _, p := range v.Products {
		dto.Products = append(dto.Products, toProductDTO(p))
	}
	for _, c := range v.Categories {
		dto.Categories = append(dto.Categories, CategoryDTO{ID: c.ID, Name: c.Name})
	}
	if v.SelectedCategory != "" {
		selected := v.SelectedCategory
		dto.SelectedCategory = &selected
	}
	return dto
}

func toOrderDTO(v checkout.OrderView) OrderResponseDTO {
	dto := OrderResponseDTO{
		State:          v.State.String(),
		Items:          make([]OrderLineDTO, 0, len(v.Lines)),
		Total:          v.Total,
		TotalFormatted: v.FormattedTotal(),
		ItemCount:      v.ItemCount,
	}
	for _, line := range v.Lines {
		dto.Items = append(dto.Items, OrderLineDTO{
			ProductID:         line.Product.ID,
			Name:              line.Product.Name,
			Price:             line.Product.Price,
			Unit:              line.Product.UnitLabel(),
			Quantity:          line.Quantity,
			Subtotal:          line.Subtotal,
			SubtotalFormatted: money.Format(line.Subtotal),
		})
	}
	return dto
}

func toAdjustmentDTO(v checkout.AdjustmentView) AdjustmentResponseDTO {
	return AdjustmentResponseDTO{
		Product:           toProductDTO(v.Product),
		Staged:            v.Staged,
		CartQuantity:      v.CartQuantity,
		InCart:            v.InCart,
		CanIncrement:      v.CanIncrement,
		CanDecrement:      v.CanDecrement,
		Subtotal:          v.Subtotal,
		SubtotalFormatted: money.Format(v.Subtotal),
		CartExceedsStock:  v.ExceedsStock,
	}
}

func toPaymentDTO(v checkout.PaymentView) PaymentResponseDTO {
	dto := PaymentResponseDTO{
		Total:                      v.Total,
		TotalFormatted:             money.Format(v.Total),
		Received:                   v.Received,
		IsInputEmpty:               v.IsInputEmpty,
		EffectiveReceived:          v.EffectiveReceived,
		EffectiveReceivedFormatted: money.Format(v.EffectiveReceived),
		Change:                     v.Change,
		ChangeFormatted:            money.Format(v.Change),
		Insufficient:               v.Insufficient,
		Pending:                    v.Pending,
		Suggestions:                make([]SuggestionDTO, 0, len(v.Suggestions)),
	}
	for _, amount := range v.Suggestions {
		dto.Suggestions = append(dto.Suggestions, SuggestionDTO{Amount: amount, Formatted: money.Format(amount)})
	}
	return dto
}

func toReceiptDTO(tx *domain.Transaction) ReceiptResponseDTO {
	dto := ReceiptResponseDTO{
		TransactionID:           tx.ID,
		InvoiceNumber:           tx.InvoiceNumber,
		Status:                  tx.Status,
		TotalAmount:             tx.TotalAmount,
		TotalAmountFormatted:    money.Format(tx.TotalAmount),
		ReceivedAmount:          tx.ReceivedAmount,
		ReceivedAmountFormatted: money.Format(tx.ReceivedAmount),
		ChangeAmount:            tx.ChangeAmount,
		ChangeAmountFormatted:   money.Format(tx.ChangeAmount),
		PaidAt:                  tx.PaidAt,
		CreatedAt:               tx.CreatedAt,
		Items:                   make([]ReceiptItemDTO, 0, len(tx.Items)),
	}
	for _, item := range tx.Items {
		dto.Items = append(dto.Items, ReceiptItemDTO{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Price:       item.Price,
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal,
		})
	}
	return dto
}
