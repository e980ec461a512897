// Package checkout orchestrates the payment leg of an order: handing a
// confirmed order to the hosted payment gateway and reacting to the
// gateway's completion and cancellation callbacks.
package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/money"
	"github.com/shopspring/decimal"
)

// LineItem is one gateway line entry: the unit amount in minor currency
// units, never a fraction.
type LineItem struct {
	UnitAmountCents int64
	Currency        string
	ProductName     string
	Quantity        int
}

type SessionRequest struct {
	ClientReferenceID string
	CustomerEmail     string
	SuccessURL        string
	CancelURL         string
	LineItems         []LineItem
}

// Gateway creates a hosted checkout session and returns its redirect URL.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (string, error)
}

// Sender delivers the receipt notification. Failures are logged by the
// orchestrator and never propagated.
type Sender interface {
	Send(ctx context.Context, subject, body, recipient string) error
}

// Orders is the slice of order persistence the orchestrator needs.
type Orders interface {
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	MarkPaid(ctx context.Context, orderID int64) (*models.Order, bool, error)
}

type Config struct {
	SuccessURL     string
	CancelURL      string
	Currency       string
	GatewayTimeout time.Duration
}

type Orchestrator struct {
	orders  Orders
	gateway Gateway
	email   Sender
	cfg     Config
	logger  *slog.Logger
}

func NewOrchestrator(orders Orders, gateway Gateway, email Sender, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 15 * time.Second
	}
	return &Orchestrator{
		orders:  orders,
		gateway: gateway,
		email:   email,
		cfg:     cfg,
		logger:  logger,
	}
}

// StartPayment requests a hosted checkout session for the order and returns
// the redirect URL. The order must have at least one detail row. A gateway
// failure leaves the order status untouched and is reported as a retryable
// database.ErrGateway.
func (o *Orchestrator) StartPayment(ctx context.Context, orderID int64, customerEmail string) (string, error) {
	order, err := o.orders.GetOrder(ctx, orderID)
	if err != nil {
		return "", err
	}
	if len(order.Details) == 0 {
		return "", database.ErrEmptyOrder
	}

	lineItems := make([]LineItem, 0, len(order.Details))
	for _, detail := range order.Details {
		if detail.Quantity < 1 {
			return "", fmt.Errorf("order %d product %d: %w", orderID, detail.ProductID, database.ErrInvalidQuantity)
		}
		// The detail subtotal is the confirmation-time price snapshot;
		// dividing by quantity recovers the unit price the customer saw.
		unitPrice := detail.Subtotal.Div(decimal.NewFromInt(int64(detail.Quantity)))
		cents, err := money.Cents(unitPrice)
		if err != nil {
			return "", fmt.Errorf("order %d product %d: %w", orderID, detail.ProductID, err)
		}
		lineItems = append(lineItems, LineItem{
			UnitAmountCents: cents,
			Currency:        o.cfg.Currency,
			ProductName:     detail.ProductTitle,
			Quantity:        detail.Quantity,
		})
	}

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.GatewayTimeout)
	defer cancel()

	redirectURL, err := o.gateway.CreateCheckoutSession(callCtx, SessionRequest{
		ClientReferenceID: order.OrderNumber,
		CustomerEmail:     customerEmail,
		SuccessURL:        o.cfg.SuccessURL,
		CancelURL:         o.cfg.CancelURL,
		LineItems:         lineItems,
	})
	if err != nil {
		gatewayErrors.Inc()
		return "", fmt.Errorf("%w: %v", database.ErrGateway, err)
	}

	paymentsStarted.Inc()
	return redirectURL, nil
}

// OnPaymentCompleted marks the order paid and sends the receipt. It is
// idempotent per order id: a duplicate callback finds the order already
// paid and returns it without sending another receipt. A receipt delivery
// failure is logged and never rolls back the status transition.
func (o *Orchestrator) OnPaymentCompleted(ctx context.Context, orderID int64, recipient string) (*models.Order, error) {
	order, transitioned, err := o.orders.MarkPaid(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if !transitioned {
		if order.Status == models.OrderStatusPaid {
			o.logger.InfoContext(ctx, "duplicate payment completion ignored", "order_id", orderID)
			return order, nil
		}
		return nil, fmt.Errorf("order %d not paid after completion: %w", orderID, database.ErrOrderNotPending)
	}

	paymentsCompleted.Inc()
	o.logger.InfoContext(ctx, "payment completed", "order_id", orderID, "order_number", order.OrderNumber)

	if err := o.email.Send(ctx, receiptSubject, receiptBody(order), recipient); err != nil {
		o.logger.ErrorContext(ctx, "receipt email failed", "order_id", orderID, "error", err)
	}

	return order, nil
}

// OnPaymentCanceled records a canceled gateway session. The order stays
// pending so the customer can retry checkout later; only the gateway
// correlation held in the session is dropped, by the transport layer.
func (o *Orchestrator) OnPaymentCanceled(ctx context.Context, orderID int64) error {
	order, err := o.orders.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}

	paymentsCanceled.Inc()
	o.logger.InfoContext(ctx, "payment canceled, order stays pending",
		"order_id", orderID, "status", order.Status)
	return nil
}

const receiptSubject = "Thanks for your purchase"

func receiptBody(order *models.Order) string {
	titles := make([]string, 0, len(order.Details))
	for _, detail := range order.Details {
		titles = append(titles, detail.ProductTitle)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Your order was completed successfully\n")
	fmt.Fprintf(&b, "Your order number is %s\n", order.OrderNumber)
	fmt.Fprintf(&b, "Order products: %s\n", strings.Join(titles, ", "))
	fmt.Fprintf(&b, "Total price %s\n", order.TotalPrice.StringFixed(2))
	return b.String()
}
