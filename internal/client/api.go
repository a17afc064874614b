package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/restboard/restboard/internal/service/models/order"
)

// APIClient talks to the order store over HTTP. It is the snapshot source
// for the poller and the status updater used by the ledger's optimistic
// completion.
type APIClient struct {
	baseURL      string
	restaurantID int64
	httpc        *http.Client
}

func NewAPIClient(baseURL string, restaurantID int64, timeout time.Duration) *APIClient {
	return &APIClient{
		baseURL:      baseURL,
		restaurantID: restaurantID,
		httpc:        &http.Client{Timeout: timeout},
	}
}

// FetchOrders retrieves the current order snapshot for the restaurant.
// Orders decode defensively, so string-encoded items never fail a fetch.
func (c *APIClient) FetchOrders(ctx context.Context) ([]order.Order, error) {
	endpoint := fmt.Sprintf("%s/api/orders?%s", c.baseURL, url.Values{
		"restaurant_id": {strconv.FormatInt(c.restaurantID, 10)},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build snapshot request: %w", err)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch orders: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected snapshot status %d", resp.StatusCode)
	}

	var orders []order.Order
	if err := json.NewDecoder(resp.Body).Decode(&orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// UpdateStatus issues the status change for one order and returns the
// store-confirmed row. Not-found and invalid-status responses map to the
// model's sentinel errors so the ledger can surface them precisely.
func (c *APIClient) UpdateStatus(ctx context.Context, id int64, status order.Status) (*order.Order, error) {
	body, err := json.Marshal(map[string]string{"status": status.String()})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal status request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/api/orders/%d/status", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build status request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to update status: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, order.ErrNotFound
	case http.StatusBadRequest:
		return nil, order.ErrInvalidStatus
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status update response %d: %s", resp.StatusCode, msg)
	}

	var updated order.Order
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		return nil, fmt.Errorf("failed to decode updated order: %w", err)
	}
	return &updated, nil
}
