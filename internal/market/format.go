package market

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// trPrinter renders numbers in Turkish locale form: comma decimal separator,
// dot thousands grouping ("11,25", "1.500").
var trPrinter = message.NewPrinter(language.Turkish)

func FormatPrice(d decimal.Decimal) string {
	return trPrinter.Sprintf("%.2f", d.InexactFloat64())
}

func FormatQuantity(q int64) string {
	return trPrinter.Sprintf("%d", q)
}

// PriceListHTML builds the subscriber-facing price table. Groups are sorted by
// name so the message is stable across fetches.
func PriceListHTML(groups map[string]GroupSnapshot) string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, name := range names {
		g := groups[name]
		b.WriteString("\U0001F4CC  <u><b>")
		b.WriteString(name)
		b.WriteString("</b></u>  \U0001F4CC\n")
		b.WriteString("<b>En az:</b>   ")
		b.WriteString(FormatPrice(g.Min))
		b.WriteString(" TL\n")
		b.WriteString("<b>En fazla:</b>   ")
		b.WriteString(FormatPrice(g.Max))
		b.WriteString(" TL\n")
		b.WriteString("<b>Ortalama:</b>   ")
		b.WriteString(FormatPrice(g.Avg))
		b.WriteString(" TL\n")
		b.WriteString("<b>Miktar:</b>   ")
		b.WriteString(FormatQuantity(g.Quantity))
		b.WriteString(" KG\n\n\n")
	}
	return b.String()
}
