package order

import "time"

// QueryOrdersModel is the filter for listing orders.
type QueryOrdersModel struct {
	RestaurantID int64
	Ids          []int64
	Statuses     []Status
	Since        time.Time
	Limit        int
	Offset       int
}
