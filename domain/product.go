package domain

import "time"

const defaultUnitLabel = "Pcs"

// ProductSnapshot is the catalog view of a product at selection time.
// The order session keeps a copy and never mutates it.
type ProductSnapshot struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Price        int64  `json:"price"`
	EnableStock  bool   `json:"enableStock"`
	StockQty     *int   `json:"stockQty,omitempty"`
	Unit         string `json:"unit,omitempty"`
	Image        string `json:"image,omitempty"`
	CategoryID   string `json:"categoryId,omitempty"`
	BarcodeValue string `json:"barcodeValue,omitempty"`
	IsActive     bool   `json:"isActive"`
}

// StockLimit returns the tracked stock and whether quantities are bounded by it.
func (p ProductSnapshot) StockLimit() (int, bool) {
	if !p.EnableStock || p.StockQty == nil {
		return 0, false
	}
	if *p.StockQty < 0 {
		return 0, true
	}
	return *p.StockQty, true
}

func (p ProductSnapshot) UnitLabel() string {
	if p.Unit == "" {
		return defaultUnitLabel
	}
	return p.Unit
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// CatalogSnapshot is a point-in-time copy of the upstream catalog.
type CatalogSnapshot struct {
	Products   []ProductSnapshot `json:"products"`
	Categories []Category        `json:"categories"`
	FetchedAt  time.Time         `json:"fetchedAt"`
}

type ProductQuery struct {
	CategoryID string
	Search     string
	Page       int
	PageSize   int
}
