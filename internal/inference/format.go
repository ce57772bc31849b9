package inference

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatCurrency renders a dollar amount with thousands separators,
// e.g. 1234567.891 -> "$1,234,567.89"
func FormatCurrency(v float64) string {
	if v < 0 {
		return "-" + printer.Sprintf("$%.2f", -v)
	}
	return printer.Sprintf("$%.2f", v)
}
