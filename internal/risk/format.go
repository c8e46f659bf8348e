package risk

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// money formats an amount with thousands separators, e.g. $12,345.67.
func money(v float64) string {
	return printer.Sprintf("$%.2f", v)
}

func percent(v float64) string {
	return printer.Sprintf("%.2f%%", v*100)
}
