package market

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestPriceListHTML(t *testing.T) {
	groups := map[string]GroupSnapshot{
		"Cereals": {
			Group:      "Cereals",
			Min:        decimal.RequireFromString("10.00"),
			Max:        decimal.RequireFromString("12.50"),
			Avg:        decimal.RequireFromString("11.25"),
			Quantity:   500,
			CapturedAt: time.Now(),
		},
	}

	text := PriceListHTML(groups)

	for _, want := range []string{"Cereals", "11,25", "10,00", "12,50", "En az:", "En fazla:", "Ortalama:", "Miktar:", "500 KG"} {
		if !strings.Contains(text, want) {
			t.Fatalf("price list missing %q:\n%s", want, text)
		}
	}
	if strings.Contains(text, "11.25") {
		t.Fatalf("prices must use the comma decimal separator:\n%s", text)
	}
}

func TestPriceListHTMLStableOrder(t *testing.T) {
	groups := map[string]GroupSnapshot{
		"Legumes": {Group: "Legumes", Quantity: 1},
		"Cereals": {Group: "Cereals", Quantity: 1},
	}
	text := PriceListHTML(groups)
	if strings.Index(text, "Cereals") > strings.Index(text, "Legumes") {
		t.Fatal("groups must be sorted by name")
	}
}

func TestFormatQuantityGrouping(t *testing.T) {
	if got := FormatQuantity(1500); got != "1.500" {
		t.Fatalf("FormatQuantity(1500) = %q, want 1.500", got)
	}
}
