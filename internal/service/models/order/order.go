package order

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCustomerName is shown when an order arrives without one.
const DefaultCustomerName = "Guest"

var ErrNotFound = errors.New("order not found")

// Order represents a placed order in the system.
type Order struct {
	ID           int64           `json:"id"`
	RestaurantID int64           `json:"restaurantId"`
	CustomerName string          `json:"customerName"`
	TableNumber  string          `json:"tableNumber"`
	Items        []Item          `json:"items"`
	TotalPrice   decimal.Decimal `json:"totalPrice"`
	Status       Status          `json:"status"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// Normalize applies the model defaults: placeholder customer name, item
// quantity/price defaults, pending status and a derived total when the
// upstream payload carried none.
func (o *Order) Normalize() {
	if o.CustomerName == "" {
		o.CustomerName = DefaultCustomerName
	}
	if o.Status == "" {
		o.Status = StatusPending
	}
	for i := range o.Items {
		o.Items[i].normalize()
	}
	if o.TotalPrice.IsZero() {
		o.TotalPrice = o.DeriveTotal()
	}
}

// DeriveTotal sums price times quantity over the items. It is the fallback
// amount used whenever TotalPrice is absent from upstream data.
func (o *Order) DeriveTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.Subtotal())
	}
	return total
}

// Amount returns the money value of the order: TotalPrice when present,
// otherwise the item sum. Missing amounts contribute zero, never NaN.
func (o *Order) Amount() decimal.Decimal {
	if o.TotalPrice.IsPositive() {
		return o.TotalPrice
	}
	return o.DeriveTotal()
}

// UnmarshalJSON decodes an order defensively: items may arrive as a
// structured array, as string-encoded entries, or as a JSON string holding
// the whole array; a malformed total price falls back to the item sum and
// an unknown status to pending.
func (o *Order) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID           int64           `json:"id"`
		RestaurantID int64           `json:"restaurantId"`
		CustomerName string          `json:"customerName"`
		TableNumber  string          `json:"tableNumber"`
		Items        json.RawMessage `json:"items"`
		TotalPrice   json.RawMessage `json:"totalPrice"`
		Status       string          `json:"status"`
		CreatedAt    time.Time       `json:"createdAt"`
		UpdatedAt    time.Time       `json:"updatedAt"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Order{
		ID:           raw.ID,
		RestaurantID: raw.RestaurantID,
		CustomerName: raw.CustomerName,
		TableNumber:  raw.TableNumber,
		Items:        DecodeItems(raw.Items),
		CreatedAt:    raw.CreatedAt,
		UpdatedAt:    raw.UpdatedAt,
	}

	if status, err := ParseStatus(raw.Status); err == nil {
		out.Status = status
	} else {
		out.Status = StatusPending
	}

	out.TotalPrice = decimal.Zero
	if len(raw.TotalPrice) > 0 {
		var price decimal.Decimal
		if err := json.Unmarshal(raw.TotalPrice, &price); err == nil && !price.IsNegative() {
			out.TotalPrice = price
		}
	}

	out.Normalize()
	*o = out
	return nil
}
