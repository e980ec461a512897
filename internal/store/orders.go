package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
	"github.com/safar/go-storefront/internal/money"
	"github.com/shopspring/decimal"
)

// ConfirmLine is one cart line at confirmation time. The cart is
// authoritative for quantity; the subtotal is recomputed from the product's
// current catalog price inside the confirmation transaction.
type ConfirmLine struct {
	ProductID int64
	Quantity  int
}

func orderNumber(id int64, registeredAt time.Time) string {
	return fmt.Sprintf("ORD-%d-%d", id, registeredAt.Year())
}

// ConfirmOrder turns a cart snapshot into the single authoritative pending
// order for a client. All of the client's pending orders are locked for the
// duration of the transaction, merged into the oldest one, and the cart
// lines are applied on top. Products that have left the catalog are
// skipped. Two confirmations racing for the same client serialize on the
// row locks; exhausted retries surface as database.ErrBusy.
func ConfirmOrder(ctx context.Context, db *sql.DB, clientID int64, lines []ConfirmLine) (*models.Order, error) {
	var order *models.Order

	err := database.WithRetry(ctx, db, database.SerializableTxOptions(), func(tx *sql.Tx) error {
		pendingIDs, err := lockPendingOrders(ctx, tx, clientID)
		if err != nil {
			return err
		}

		var targetID int64
		if len(pendingIDs) == 0 {
			targetID, err = insertPendingOrder(ctx, tx, clientID)
		} else {
			// Oldest pending order wins; the rest are folded into it.
			targetID = pendingIDs[0]
			err = mergePendingOrders(ctx, tx, targetID, pendingIDs[1:])
		}
		if err != nil {
			return err
		}

		for _, line := range lines {
			if err := upsertOrderDetail(ctx, tx, targetID, line); err != nil {
				return err
			}
		}

		if err := finalizeOrder(ctx, tx, targetID); err != nil {
			return err
		}

		order, err = loadOrderTx(ctx, tx, targetID)
		return err
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func lockPendingOrders(ctx context.Context, tx *sql.Tx, clientID int64) ([]int64, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT id FROM orders
		 WHERE client_id = $1 AND status = $2
		 ORDER BY id
		 FOR UPDATE`,
		clientID, models.OrderStatusPending)
	if err != nil {
		return nil, fmt.Errorf("lock pending orders: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending order id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return ids, nil
}

func insertPendingOrder(ctx context.Context, tx *sql.Tx, clientID int64) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`INSERT INTO orders (client_id, registration_time, order_number, total_price, status)
		 VALUES ($1, NOW(), '', 0, $2)
		 RETURNING id`,
		clientID, models.OrderStatusPending).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

// mergePendingOrders re-parents the detail rows of every surplus pending
// order onto the target, accumulating quantity and subtotal when the target
// already holds the product, and deletes the emptied orders.
func mergePendingOrders(ctx context.Context, tx *sql.Tx, targetID int64, surplusIDs []int64) error {
	for _, surplusID := range surplusIDs {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO order_details (order_id, product_id, quantity, subtotal)
			 SELECT $1, product_id, quantity, subtotal
			 FROM order_details
			 WHERE order_id = $2
			 ON CONFLICT (order_id, product_id) DO UPDATE
			 SET quantity = order_details.quantity + EXCLUDED.quantity,
			     subtotal = order_details.subtotal + EXCLUDED.subtotal`,
			targetID, surplusID)
		if err != nil {
			return fmt.Errorf("re-parent details of order %d: %w", surplusID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM order_details WHERE order_id = $1`, surplusID); err != nil {
			return fmt.Errorf("delete details of order %d: %w", surplusID, err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, surplusID); err != nil {
			return fmt.Errorf("delete order %d: %w", surplusID, err)
		}
	}

	return nil
}

// upsertOrderDetail applies one cart line to the order. The cart overwrites
// whatever quantity is already there; the subtotal is a snapshot of the
// current catalog price. A product missing from the catalog is skipped, the
// rest of the order proceeds.
func upsertOrderDetail(ctx context.Context, tx *sql.Tx, orderID int64, line ConfirmLine) error {
	var price decimal.Decimal
	err := tx.QueryRowContext(ctx,
		`SELECT price FROM products WHERE id = $1`,
		line.ProductID).Scan(&price)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("price product %d: %w", line.ProductID, err)
	}

	subtotal := money.Subtotal(price, line.Quantity)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO order_details (order_id, product_id, quantity, subtotal)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (order_id, product_id) DO UPDATE
		 SET quantity = EXCLUDED.quantity, subtotal = EXCLUDED.subtotal`,
		orderID, line.ProductID, line.Quantity, subtotal)
	if err != nil {
		return fmt.Errorf("upsert detail for product %d: %w", line.ProductID, err)
	}

	return nil
}

// finalizeOrder recomputes the order total from its detail rows (the cart's
// cached total is never trusted) and stamps the order number once the id is
// known, if it has not been stamped before.
func finalizeOrder(ctx context.Context, tx *sql.Tx, orderID int64) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE orders
		 SET total_price = (SELECT COALESCE(SUM(subtotal), 0) FROM order_details WHERE order_id = $1)
		 WHERE id = $1`,
		orderID)
	if err != nil {
		return fmt.Errorf("recompute total: %w", err)
	}

	var registeredAt time.Time
	var number string
	err = tx.QueryRowContext(ctx,
		`SELECT registration_time, order_number FROM orders WHERE id = $1`,
		orderID).Scan(&registeredAt, &number)
	if err != nil {
		return fmt.Errorf("read order for stamping: %w", err)
	}

	if number == "" {
		_, err = tx.ExecContext(ctx,
			`UPDATE orders SET order_number = $2 WHERE id = $1`,
			orderID, orderNumber(orderID, registeredAt))
		if err != nil {
			return fmt.Errorf("stamp order number: %w", err)
		}
	}

	return nil
}

type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func loadOrderTx(ctx context.Context, q rowQuerier, id int64) (*models.Order, error) {
	order := &models.Order{}

	err := q.QueryRowContext(ctx,
		`SELECT id, client_id, registration_time, order_number, total_price, status
		 FROM orders
		 WHERE id = $1`,
		id).Scan(
		&order.ID,
		&order.ClientID,
		&order.RegistrationTime,
		&order.OrderNumber,
		&order.TotalPrice,
		&order.Status,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	details, err := loadOrderDetails(ctx, q, id)
	if err != nil {
		return nil, err
	}
	order.Details = details

	return order, nil
}

func loadOrderDetails(ctx context.Context, q rowQuerier, orderID int64) ([]models.OrderDetail, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT d.id, d.order_id, d.product_id, p.title, d.quantity, d.subtotal
		 FROM order_details d
		 JOIN products p ON p.id = d.product_id
		 WHERE d.order_id = $1
		 ORDER BY d.product_id`,
		orderID)
	if err != nil {
		return nil, fmt.Errorf("get order details: %w", err)
	}
	defer rows.Close()

	var details []models.OrderDetail
	for rows.Next() {
		var detail models.OrderDetail
		err := rows.Scan(
			&detail.ID,
			&detail.OrderID,
			&detail.ProductID,
			&detail.ProductTitle,
			&detail.Quantity,
			&detail.Subtotal,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order detail: %w", err)
		}
		details = append(details, detail)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return details, nil
}

func GetOrder(ctx context.Context, db *sql.DB, id int64) (*models.Order, error) {
	return loadOrderTx(ctx, db, id)
}

// GetPendingOrder returns the order only when it is owned by the client and
// still pending. Ownership failures are reported as not-found so callers
// cannot probe for other clients' orders.
func GetPendingOrder(ctx context.Context, db *sql.DB, orderID, clientID int64) (*models.Order, error) {
	order, err := loadOrderTx(ctx, db, orderID)
	if err != nil {
		return nil, err
	}
	if order.ClientID != clientID {
		return nil, database.ErrOrderNotFound
	}
	if order.Status != models.OrderStatusPending {
		return nil, database.ErrOrderNotPending
	}
	return order, nil
}

func ListPendingOrders(ctx context.Context, db *sql.DB, clientID int64) ([]models.Order, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, client_id, registration_time, order_number, total_price, status
		 FROM orders
		 WHERE client_id = $1 AND status = $2
		 ORDER BY id`,
		clientID, models.OrderStatusPending)
	if err != nil {
		return nil, fmt.Errorf("list pending orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.ClientID,
			&order.RegistrationTime,
			&order.OrderNumber,
			&order.TotalPrice,
			&order.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return orders, nil
}

// MarkOrderPaid flips a pending order to paid. The update is conditional on
// the current status, so a duplicate completion callback finds zero rows
// affected and reports transitioned=false without touching the order.
func MarkOrderPaid(ctx context.Context, db *sql.DB, orderID int64) (*models.Order, bool, error) {
	var order *models.Order
	var transitioned bool

	err := database.WithTransaction(ctx, db, database.DefaultTxOptions(), func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE orders SET status = $2 WHERE id = $1 AND status = $3`,
			orderID, models.OrderStatusPaid, models.OrderStatusPending)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("get rows affected: %w", err)
		}
		transitioned = rowsAffected == 1

		order, err = loadOrderTx(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return nil, false, err
	}

	return order, transitioned, nil
}

func ListOrdersCursor(ctx context.Context, db *sql.DB, clientID int64, cursor string, limit int) (*CursorPage, error) {
	cursorData, err := DecodeCursor(cursor)
	if err != nil {
		return nil, fmt.Errorf("decode cursor: %w", err)
	}

	query := `
		SELECT id, client_id, registration_time, order_number, total_price, status
		FROM orders
		WHERE client_id = $1
		  AND (registration_time, id) < ($2, $3)
		ORDER BY registration_time DESC, id DESC
		LIMIT $4`

	rows, err := db.QueryContext(ctx, query, clientID, cursorData.RegisteredAt, cursorData.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var order models.Order
		err := rows.Scan(
			&order.ID,
			&order.ClientID,
			&order.RegistrationTime,
			&order.OrderNumber,
			&order.TotalPrice,
			&order.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, order)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	hasMore := len(orders) > limit
	if hasMore {
		orders = orders[:limit]
	}

	var nextCursor string
	if hasMore && len(orders) > 0 {
		lastOrder := orders[len(orders)-1]
		nextCursor = EncodeCursor(OrderCursor{
			RegisteredAt: lastOrder.RegistrationTime,
			ID:           lastOrder.ID,
		})
	}

	return &CursorPage{
		Items:      orders,
		NextCursor: nextCursor,
		HasMore:    hasMore,
	}, nil
}

// Orders adapts the order table to the ports used by the cart (pending
// order restore) and the checkout orchestrator.
type Orders struct {
	DB *sql.DB
}

func (o *Orders) GetPendingOrder(ctx context.Context, orderID, clientID int64) (*models.Order, error) {
	return GetPendingOrder(ctx, o.DB, orderID, clientID)
}

func (o *Orders) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return GetOrder(ctx, o.DB, orderID)
}

func (o *Orders) MarkPaid(ctx context.Context, orderID int64) (*models.Order, bool, error) {
	return MarkOrderPaid(ctx, o.DB, orderID)
}
