package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Client is the checkout profile for a user. It is created lazily the
// first time a user confirms an order.
type Client struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"user_id"`
	Phone     string    `json:"phone"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Product struct {
	ID          int64           `json:"id"`
	SKU         string          `json:"sku"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type Order struct {
	ID               int64           `json:"id"`
	ClientID         int64           `json:"client_id"`
	RegistrationTime time.Time       `json:"registration_time"`
	OrderNumber      string          `json:"order_number"`
	TotalPrice       decimal.Decimal `json:"total_price"`
	Status           string          `json:"status"`
	Details          []OrderDetail   `json:"details,omitempty"`
}

// OrderDetail is a price snapshot: subtotal is product price * quantity at
// confirmation time and is never recomputed from later catalog prices.
type OrderDetail struct {
	ID           int64           `json:"id"`
	OrderID      int64           `json:"order_id"`
	ProductID    int64           `json:"product_id"`
	ProductTitle string          `json:"product_title"`
	Quantity     int             `json:"quantity"`
	Subtotal     decimal.Decimal `json:"subtotal"`
}

const (
	OrderStatusPending = "pending"
	OrderStatusPaid    = "paid"
)
