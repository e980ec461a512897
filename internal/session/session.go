// Package session provides the per-browser-session key/value store the
// cart and checkout flows are persisted in. Well-known keys: "cart",
// "cart_total_price" and "order_id".
package session

import "context"

const (
	KeyCart      = "cart"
	KeyCartTotal = "cart_total_price"
	KeyOrderID   = "order_id"
)

// Store is a per-session string map. A session holds state for exactly one
// browser; it is never shared between sessions.
type Store interface {
	Get(ctx context.Context, sessionID, key string) (string, bool, error)
	Set(ctx context.Context, sessionID, key, value string) error
	Delete(ctx context.Context, sessionID, key string) error
	Destroy(ctx context.Context, sessionID string) error
}
