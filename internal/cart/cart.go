// Package cart implements the session-scoped shopping cart. The cart is a
// typed structure serialized as JSON at the session-store boundary; the
// total is a derived cache and is recomputed on every read.
package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/money"
	"github.com/safar/go-storefront/internal/session"
	"github.com/shopspring/decimal"
)

// Product is the slice of catalog data the cart needs.
type Product struct {
	ID    int64
	Title string
	Price decimal.Decimal
}

// Catalog resolves a product id to its current price and title. found is
// false when the product no longer exists.
type Catalog interface {
	GetProduct(ctx context.Context, id int64) (Product, bool, error)
}

// PendingOrders looks up a pending order owned by the given client.
// Implementations must reject orders that are not owned by the client or
// are no longer pending.
type PendingOrders interface {
	GetPendingOrder(ctx context.Context, orderID, clientID int64) (*models.Order, error)
}

type Line struct {
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	UnitPrice decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type Cart struct {
	Lines map[int64]*Line `json:"lines"`
}

// SessionCart binds a Cart to one browser session. Every mutation is
// written back to the session store immediately.
type SessionCart struct {
	store     session.Store
	catalog   Catalog
	sessionID string
	cart      *Cart
}

// Load reads the cart for the given session, initializing an empty one in
// the store on first access.
func Load(ctx context.Context, store session.Store, catalog Catalog, sessionID string) (*SessionCart, error) {
	c := &SessionCart{
		store:     store,
		catalog:   catalog,
		sessionID: sessionID,
		cart:      &Cart{Lines: make(map[int64]*Line)},
	}

	raw, ok, err := store.Get(ctx, sessionID, session.KeyCart)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if !ok {
		if err := c.save(ctx); err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := json.Unmarshal([]byte(raw), c.cart); err != nil {
		return nil, fmt.Errorf("decode cart: %w", err)
	}
	if c.cart.Lines == nil {
		c.cart.Lines = make(map[int64]*Line)
	}

	return c, nil
}

// Add puts quantity units of a product into the cart. If the product is
// already present the quantity is incremented and the subtotal recomputed
// from the line's original unit price, so a catalog price change
// mid-session does not drift the line.
func (c *SessionCart) Add(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return database.ErrInvalidQuantity
	}

	line, ok := c.cart.Lines[productID]
	if ok {
		line.Quantity += quantity
		line.Subtotal = money.Subtotal(line.UnitPrice, line.Quantity)
		return c.save(ctx)
	}

	product, found, err := c.catalog.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("resolve product %d: %w", productID, err)
	}
	if !found {
		return database.ErrProductNotFound
	}

	c.cart.Lines[productID] = &Line{
		ProductID: productID,
		Title:     product.Title,
		UnitPrice: product.Price,
		Quantity:  quantity,
		Subtotal:  money.Subtotal(product.Price, quantity),
	}

	return c.save(ctx)
}

// Update sets the quantity of a product directly. A quantity below 1 is
// equivalent to Delete. Updating a product that is not in the cart is a
// defined no-op (it can race with a concurrent delete); the returned bool
// reports whether the product was present.
func (c *SessionCart) Update(ctx context.Context, productID int64, quantity int) (bool, error) {
	line, ok := c.cart.Lines[productID]
	if !ok {
		return false, nil
	}

	if quantity < 1 {
		delete(c.cart.Lines, productID)
		return true, c.save(ctx)
	}

	line.Quantity = quantity
	line.Subtotal = money.Subtotal(line.UnitPrice, quantity)
	return true, c.save(ctx)
}

// Delete removes a product's line. Removing an absent product is a no-op.
func (c *SessionCart) Delete(ctx context.Context, productID int64) (bool, error) {
	if _, ok := c.cart.Lines[productID]; !ok {
		return false, nil
	}

	delete(c.cart.Lines, productID)
	return true, c.save(ctx)
}

// Clear empties the cart. Called once per successful order confirmation
// and directly by the user.
func (c *SessionCart) Clear(ctx context.Context) error {
	c.cart.Lines = make(map[int64]*Line)
	return c.save(ctx)
}

// RestorePendingOrder replays a still-pending order owned by the client
// back into the cart. Orders not owned by the client or no longer pending
// are rejected by the PendingOrders lookup. Products that have since left
// the catalog are skipped.
func (c *SessionCart) RestorePendingOrder(ctx context.Context, orders PendingOrders, orderID, clientID int64) error {
	order, err := orders.GetPendingOrder(ctx, orderID, clientID)
	if err != nil {
		return fmt.Errorf("restore order %d: %w", orderID, err)
	}

	for _, detail := range order.Details {
		err := c.Add(ctx, detail.ProductID, detail.Quantity)
		if errors.Is(err, database.ErrProductNotFound) {
			continue
		}
		if err != nil {
			return err
		}
	}

	return nil
}

// Total is always the sum of the line subtotals; the session-cached value
// is never trusted.
func (c *SessionCart) Total() decimal.Decimal {
	subtotals := make([]decimal.Decimal, 0, len(c.cart.Lines))
	for _, line := range c.cart.Lines {
		subtotals = append(subtotals, line.Subtotal)
	}
	return money.Sum(subtotals...)
}

// Lines returns a snapshot of the cart ordered by product id.
func (c *SessionCart) Lines() []Line {
	lines := make([]Line, 0, len(c.cart.Lines))
	for _, line := range c.cart.Lines {
		lines = append(lines, *line)
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	return lines
}

func (c *SessionCart) IsEmpty() bool {
	return len(c.cart.Lines) == 0
}

func (c *SessionCart) save(ctx context.Context) error {
	raw, err := json.Marshal(c.cart)
	if err != nil {
		return fmt.Errorf("encode cart: %w", err)
	}
	if err := c.store.Set(ctx, c.sessionID, session.KeyCart, string(raw)); err != nil {
		return fmt.Errorf("save cart: %w", err)
	}
	if err := c.store.Set(ctx, c.sessionID, session.KeyCartTotal, c.Total().String()); err != nil {
		return fmt.Errorf("save cart total: %w", err)
	}
	return nil
}
