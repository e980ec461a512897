package checkout

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOrders struct {
	orders map[int64]*models.Order
}

func (f *fakeOrders) GetOrder(_ context.Context, orderID int64) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, database.ErrOrderNotFound
	}
	return order, nil
}

func (f *fakeOrders) MarkPaid(_ context.Context, orderID int64) (*models.Order, bool, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, false, database.ErrOrderNotFound
	}
	if order.Status == models.OrderStatusPaid {
		return order, false, nil
	}
	order.Status = models.OrderStatusPaid
	return order, true, nil
}

type fakeGateway struct {
	err      error
	requests []SessionRequest
}

func (f *fakeGateway) CreateCheckoutSession(_ context.Context, req SessionRequest) (string, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return "https://gateway.example/session/abc", nil
}

type fakeSender struct {
	err  error
	sent []string
}

func (f *fakeSender) Send(_ context.Context, subject, body, recipient string) error {
	f.sent = append(f.sent, body)
	return f.err
}

func price(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func pendingOrder() *models.Order {
	return &models.Order{
		ID:          1,
		ClientID:    10,
		OrderNumber: "ORD-1-2026",
		TotalPrice:  price("40.00"),
		Status:      models.OrderStatusPending,
		Details: []models.OrderDetail{
			{OrderID: 1, ProductID: 7, ProductTitle: "Keyboard", Quantity: 2, Subtotal: price("20.00")},
			{OrderID: 1, ProductID: 9, ProductTitle: "Mouse", Quantity: 1, Subtotal: price("20.00")},
		},
	}
}

func newTestOrchestrator(orders *fakeOrders, gateway *fakeGateway, sender *fakeSender) *Orchestrator {
	return NewOrchestrator(orders, gateway, sender, Config{
		SuccessURL:     "https://shop.example/payment/completed",
		CancelURL:      "https://shop.example/payment/canceled",
		Currency:       "usd",
		GatewayTimeout: time.Second,
	}, slog.Default())
}

func TestStartPayment(t *testing.T) {
	orders := &fakeOrders{orders: map[int64]*models.Order{1: pendingOrder()}}
	gateway := &fakeGateway{}
	o := newTestOrchestrator(orders, gateway, &fakeSender{})

	url, err := o.StartPayment(context.Background(), 1, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, "https://gateway.example/session/abc", url)

	require.Len(t, gateway.requests, 1)
	req := gateway.requests[0]
	assert.Equal(t, "ORD-1-2026", req.ClientReferenceID)
	assert.Equal(t, "buyer@example.com", req.CustomerEmail)
	require.Len(t, req.LineItems, 2)

	// 20.00 subtotal over 2 units is 10.00 a unit, 1000 cents.
	assert.Equal(t, int64(1000), req.LineItems[0].UnitAmountCents)
	assert.Equal(t, 2, req.LineItems[0].Quantity)
	assert.Equal(t, "Keyboard", req.LineItems[0].ProductName)
	assert.Equal(t, int64(2000), req.LineItems[1].UnitAmountCents)
	assert.Equal(t, "usd", req.LineItems[1].Currency)
}

func TestStartPaymentEmptyOrder(t *testing.T) {
	order := pendingOrder()
	order.Details = nil
	orders := &fakeOrders{orders: map[int64]*models.Order{1: order}}
	gateway := &fakeGateway{}
	o := newTestOrchestrator(orders, gateway, &fakeSender{})

	_, err := o.StartPayment(context.Background(), 1, "buyer@example.com")
	assert.True(t, errors.Is(err, database.ErrEmptyOrder))
	assert.Empty(t, gateway.requests)
}

func TestStartPaymentGatewayFailureLeavesOrderUntouched(t *testing.T) {
	orders := &fakeOrders{orders: map[int64]*models.Order{1: pendingOrder()}}
	gateway := &fakeGateway{err: errors.New("connection refused")}
	o := newTestOrchestrator(orders, gateway, &fakeSender{})

	_, err := o.StartPayment(context.Background(), 1, "buyer@example.com")
	assert.True(t, errors.Is(err, database.ErrGateway))
	assert.Equal(t, models.OrderStatusPending, orders.orders[1].Status)
}

func TestStartPaymentUnknownOrder(t *testing.T) {
	o := newTestOrchestrator(&fakeOrders{orders: map[int64]*models.Order{}}, &fakeGateway{}, &fakeSender{})

	_, err := o.StartPayment(context.Background(), 404, "buyer@example.com")
	assert.True(t, errors.Is(err, database.ErrOrderNotFound))
}

func TestOnPaymentCompleted(t *testing.T) {
	orders := &fakeOrders{orders: map[int64]*models.Order{1: pendingOrder()}}
	sender := &fakeSender{}
	o := newTestOrchestrator(orders, &fakeGateway{}, sender)

	order, err := o.OnPaymentCompleted(context.Background(), 1, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0], "ORD-1-2026")
	assert.Contains(t, sender.sent[0], "Keyboard, Mouse")
	assert.Contains(t, sender.sent[0], "40.00")
}

func TestOnPaymentCompletedIsIdempotent(t *testing.T) {
	orders := &fakeOrders{orders: map[int64]*models.Order{1: pendingOrder()}}
	sender := &fakeSender{}
	o := newTestOrchestrator(orders, &fakeGateway{}, sender)

	_, err := o.OnPaymentCompleted(context.Background(), 1, "buyer@example.com")
	require.NoError(t, err)

	order, err := o.OnPaymentCompleted(context.Background(), 1, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)

	// The duplicate callback must not send a second receipt.
	assert.Len(t, sender.sent, 1)
}

func TestOnPaymentCompletedEmailFailureDoesNotRollBack(t *testing.T) {
	orders := &fakeOrders{orders: map[int64]*models.Order{1: pendingOrder()}}
	sender := &fakeSender{err: errors.New("smtp down")}
	o := newTestOrchestrator(orders, &fakeGateway{}, sender)

	order, err := o.OnPaymentCompleted(context.Background(), 1, "buyer@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPaid, order.Status)
}

func TestOnPaymentCanceledKeepsOrderPending(t *testing.T) {
	orders := &fakeOrders{orders: map[int64]*models.Order{1: pendingOrder()}}
	sender := &fakeSender{}
	o := newTestOrchestrator(orders, &fakeGateway{}, sender)

	require.NoError(t, o.OnPaymentCanceled(context.Background(), 1))
	assert.Equal(t, models.OrderStatusPending, orders.orders[1].Status)
	assert.Empty(t, sender.sent)
}
