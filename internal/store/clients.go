package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/safar/go-storefront/internal/database"
	"github.com/safar/go-storefront/internal/models"
)

// GetOrCreateClient returns the checkout profile for a user, creating it on
// first checkout. Phone and address are refreshed with the values from the
// current confirmation.
func GetOrCreateClient(ctx context.Context, db *sql.DB, userID int64, phone, address string) (*models.Client, error) {
	client := &models.Client{}

	query := `
		INSERT INTO clients (user_id, phone, address, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET phone = EXCLUDED.phone, address = EXCLUDED.address, updated_at = NOW()
		RETURNING id, user_id, phone, address, created_at, updated_at`

	err := db.QueryRowContext(ctx, query, userID, phone, address).Scan(
		&client.ID,
		&client.UserID,
		&client.Phone,
		&client.Address,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("get or create client: %w", err)
	}

	return client, nil
}

func GetClientByUser(ctx context.Context, db *sql.DB, userID int64) (*models.Client, error) {
	client := &models.Client{}

	query := `
		SELECT id, user_id, phone, address, created_at, updated_at
		FROM clients
		WHERE user_id = $1`

	err := db.QueryRowContext(ctx, query, userID).Scan(
		&client.ID,
		&client.UserID,
		&client.Phone,
		&client.Address,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, database.ErrClientNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}

	return client, nil
}
