package money

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const currencyPrefix = "Rp"

// Delimit renders amount with Indonesian digit grouping, e.g. 27.000.
func Delimit(amount int64) string {
	return message.NewPrinter(language.Indonesian).Sprintf("%d", amount)
}

func Format(amount int64) string {
	return currencyPrefix + Delimit(amount)
}
