package createorder

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/restboard/restboard/internal/service/models/order"
)

type fakeService struct {
	created order.Order
	err     error
	calls   int
}

func (s *fakeService) CreateOrder(_ context.Context, o order.Order) (order.Order, error) {
	s.calls++
	if s.err != nil {
		return order.Order{}, s.err
	}
	o.ID = 1
	s.created = o
	return o, nil
}

func doRequest(svc service, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/orders", strings.NewReader(body))
	rec := httptest.NewRecorder()
	CreateOrder(rec, req, svc)
	return rec
}

func TestCreateOrderHandler(t *testing.T) {
	svc := &fakeService{}
	rec := doRequest(svc, `{
		"restaurantId": 1,
		"tableNumber": "5",
		"items": ["2x Margherita Pizza", {"name": "Cola", "quantity": 1, "price": "2.00"}],
		"totalPrice": "21.00"
	}`)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got order.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, int64(1), got.ID)

	require.Len(t, svc.created.Items, 2)
	assert.Equal(t, "Margherita Pizza", svc.created.Items[0].Name)
	assert.Equal(t, 2, svc.created.Items[0].Quantity)
}

func TestCreateOrderHandlerBadJSON(t *testing.T) {
	svc := &fakeService{}
	rec := doRequest(svc, `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

func TestCreateOrderHandlerMissingRestaurant(t *testing.T) {
	svc := &fakeService{}
	rec := doRequest(svc, `{"items": ["1x Cola"]}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

func TestCreateOrderHandlerUndecodableItems(t *testing.T) {
	svc := &fakeService{}
	rec := doRequest(svc, `{"restaurantId": 1, "items": 42}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 0, svc.calls)
}

func TestCreateOrderHandlerServiceError(t *testing.T) {
	svc := &fakeService{err: errors.New("db down")}
	rec := doRequest(svc, `{"restaurantId": 1, "items": ["1x Cola"]}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
