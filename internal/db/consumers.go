package db

import (
	"context"
)

// Consumer is one account row. Role follows the consumer_role enum used by
// the dashboard (admin, distributor, user).
type Consumer struct {
	ConsumerID    string `json:"consumer_id"`
	Name          string `json:"name"`
	Role          string `json:"role"`
	DistributorID string `json:"distributor_id,omitempty"`
	PasswordHash  string `json:"-"`
}

// Contact is a distributor's notification target.
type Contact struct {
	DistributorID string
	Type          string // "email" or "telegram"
	Email         string
	TelegramChat  int64
}

// GetConsumerByName looks up an account for login.
func (d *DB) GetConsumerByName(ctx context.Context, name string) (Consumer, error) {
	query := `
		SELECT consumer_id, name, password, role, COALESCE(distributor_id::text, '')
		FROM consumer WHERE name = $1 LIMIT 1`

	var c Consumer
	err := d.Pool.QueryRow(ctx, query, name).Scan(
		&c.ConsumerID,
		&c.Name,
		&c.PasswordHash,
		&c.Role,
		&c.DistributorID,
	)
	if err != nil {
		return Consumer{}, storageErr("get consumer by name", err)
	}
	return c, nil
}

// CreateConsumer registers a new account and returns the assigned id.
func (d *DB) CreateConsumer(ctx context.Context, name, passwordHash, role, distributorID string) (Consumer, error) {
	query := `
		INSERT INTO consumer (name, password, role, distributor_id)
		VALUES ($1, $2, $3, $4)
		RETURNING consumer_id, name, role, COALESCE(distributor_id::text, '')`

	var c Consumer
	err := d.Pool.QueryRow(ctx, query, name, passwordHash, role, distributorID).Scan(
		&c.ConsumerID,
		&c.Name,
		&c.Role,
		&c.DistributorID,
	)
	if err != nil {
		return Consumer{}, storageErr("create consumer", err)
	}
	return c, nil
}

// GetConsumerScope returns the consumer's id and its distributor's id for a
// device owner. Used to fill in alert scoping when only a device id is known.
func (d *DB) GetConsumerScope(ctx context.Context, consumerID string) (string, string, error) {
	query := `
		SELECT consumer_id, COALESCE(distributor_id::text, '')
		FROM consumer WHERE consumer_id = $1 LIMIT 1`

	var cid, did string
	if err := d.Pool.QueryRow(ctx, query, consumerID).Scan(&cid, &did); err != nil {
		return "", "", storageErr("get consumer scope", err)
	}
	return cid, did, nil
}

// ListConsumersByDistributor returns the consumer roster for one distributor.
func (d *DB) ListConsumersByDistributor(ctx context.Context, distributorID string) ([]Consumer, error) {
	query := `
		SELECT consumer_id, name, role, COALESCE(distributor_id::text, '')
		FROM consumer
		WHERE distributor_id = $1
		ORDER BY consumer_id`

	rows, err := d.Pool.Query(ctx, query, distributorID)
	if err != nil {
		return nil, storageErr("list consumers", err)
	}
	defer rows.Close()

	consumers := []Consumer{}
	for rows.Next() {
		var c Consumer
		if err := rows.Scan(&c.ConsumerID, &c.Name, &c.Role, &c.DistributorID); err != nil {
			return nil, storageErr("scan consumer", err)
		}
		consumers = append(consumers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list consumers", err)
	}
	return consumers, nil
}

// GetDistributorContact returns the notification target configured for a
// distributor. ErrNotFound when the distributor has no contact configured.
func (d *DB) GetDistributorContact(ctx context.Context, distributorID string) (Contact, error) {
	query := `
		SELECT distributor_id, contact_type, COALESCE(email, ''), COALESCE(telegram_chat_id, 0)
		FROM distributor_contact WHERE distributor_id = $1 LIMIT 1`

	var c Contact
	err := d.Pool.QueryRow(ctx, query, distributorID).Scan(
		&c.DistributorID,
		&c.Type,
		&c.Email,
		&c.TelegramChat,
	)
	if err != nil {
		return Contact{}, storageErr("get distributor contact", err)
	}
	return c, nil
}
