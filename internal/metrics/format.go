package metrics

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var thaiPrinter = message.NewPrinter(language.Thai)

// FormatCurrency renders amount in baht with grouping and two decimals,
// e.g. "฿1,234.50".
func FormatCurrency(amount float64) string {
	if amount < 0 {
		return thaiPrinter.Sprintf("-฿%.2f", -amount)
	}
	return thaiPrinter.Sprintf("฿%.2f", amount)
}

// FormatPercent renders a fraction as a percentage with the given number of
// decimals: FormatPercent(0.1234, 1) == "12.3%".
func FormatPercent(value float64, decimals int) string {
	if decimals < 0 {
		decimals = 0
	}
	return fmt.Sprintf("%.*f%%", decimals, value*100)
}

// FormatROAS renders a ROAS ratio in "Nx" notation.
func FormatROAS(roas float64) string {
	return fmt.Sprintf("%.2fx", roas)
}
