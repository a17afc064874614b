package order

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Item represents a single line item of an order.
type Item struct {
	Name     string          `json:"name"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

// quantityPrefix matches item strings of the form "2x Margherita Pizza".
var quantityPrefix = regexp.MustCompile(`^(\d+)\s*[xX]\s+(.+)$`)

// ParseItemString converts a string-encoded item like "2x Margherita Pizza"
// into an Item. Strings without a quantity prefix become a single item with
// the whole string as its name.
func ParseItemString(s string) Item {
	s = strings.TrimSpace(s)
	if m := quantityPrefix.FindStringSubmatch(s); m != nil {
		qty := 0
		for _, c := range m[1] {
			qty = qty*10 + int(c-'0')
		}
		if qty > 0 {
			return Item{Name: strings.TrimSpace(m[2]), Quantity: qty, Price: decimal.Zero}
		}
	}
	return Item{Name: s, Quantity: 1, Price: decimal.Zero}
}

// normalize applies the item defaults: quantity 1 when missing or
// non-positive, price 0 when missing.
func (i *Item) normalize() {
	if i.Quantity <= 0 {
		i.Quantity = 1
	}
}

// Subtotal returns price multiplied by quantity.
func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// UnmarshalJSON accepts both structured items and string-encoded ones
// ("2x Margherita Pizza"). Missing quantities default to 1 and missing or
// malformed prices to 0, so one bad item never fails the whole order.
func (i *Item) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*i = ParseItemString(s)
		return nil
	}

	var raw struct {
		Name     string          `json:"name"`
		Quantity json.RawMessage `json:"quantity"`
		Price    json.RawMessage `json:"price"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Item{Name: raw.Name, Quantity: 1, Price: decimal.Zero}
	if len(raw.Quantity) > 0 {
		var qty int
		if err := json.Unmarshal(raw.Quantity, &qty); err == nil && qty > 0 {
			out.Quantity = qty
		}
	}
	if len(raw.Price) > 0 {
		var price decimal.Decimal
		if err := json.Unmarshal(raw.Price, &price); err == nil && !price.IsNegative() {
			out.Price = price
		}
	}
	*i = out
	return nil
}

// DecodeItems normalizes the heterogeneous item representations seen on the
// wire into canonical items. It accepts a JSON array of items, a JSON string
// containing such an array, or a plain string-encoded item, and returns an
// empty slice for anything it cannot make sense of.
func DecodeItems(data []byte) []Item {
	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 || string(data) == "null" {
		return []Item{}
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err == nil {
		for i := range items {
			items[i].normalize()
		}
		return items
	}

	// The items column is sometimes delivered JSON-encoded as a string.
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if strings.HasPrefix(strings.TrimSpace(s), "[") {
			return DecodeItems([]byte(s))
		}
		return []Item{ParseItemString(s)}
	}

	return []Item{}
}
