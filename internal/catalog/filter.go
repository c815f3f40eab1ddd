package catalog

import (
	"strings"

	"github.com/rijalghodi/qlaris-sub000/domain"
)

// Filter returns the sellable products in categoryID (all categories when
// empty) whose name contains search. The input slice is not modified.
func Filter(products []domain.ProductSnapshot, categoryID, search string) []domain.ProductSnapshot {
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]domain.ProductSnapshot, 0, len(products))
	for _, p := range products {
		if !p.IsActive {
			continue
		}
		if categoryID != "" && p.CategoryID != categoryID {
			continue
		}
		if !matchesSearch(p.Name, needle) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// matchesSearch expects needle already trimmed and lower-cased.
func matchesSearch(name, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(name), needle)
}

func FindByID(products []domain.ProductSnapshot, id string) (domain.ProductSnapshot, bool) {
	for _, p := range products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.ProductSnapshot{}, false
}

func FindByBarcode(products []domain.ProductSnapshot, barcode string) (domain.ProductSnapshot, bool) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.ProductSnapshot{}, false
	}
	for _, p := range products {
		if p.BarcodeValue == barcode {
			return p, true
		}
	}
	return domain.ProductSnapshot{}, false
}
