package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"tank-monitor-service/internal/models"
)

const alertColumns = `id, device_id, consumer_id, distributor_id, tank_level, source,
       created_at, resolved, resolved_at`

// uniqueViolation is the Postgres error code raised by the partial unique
// index alerts_open_device_idx (device_id WHERE NOT resolved).
const uniqueViolation = "23505"

// InsertOpenAlert inserts an unresolved alert. If an unresolved alert already
// exists for the device the existing one is returned instead: the partial
// unique index makes the check-and-insert atomic across server instances.
func (d *DB) InsertOpenAlert(ctx context.Context, alert models.Alert) (models.Alert, bool, error) {
	query := fmt.Sprintf(`
		INSERT INTO alerts (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, NULL)
		RETURNING %s`, alertColumns, alertColumns)

	var out models.Alert
	err := d.Pool.QueryRow(ctx, query,
		alert.ID,
		alert.DeviceID,
		alert.ConsumerID,
		alert.DistributorID,
		alert.TankLevel,
		alert.Source,
		alert.CreatedAt,
	).Scan(
		&out.ID,
		&out.DeviceID,
		&out.ConsumerID,
		&out.DistributorID,
		&out.TankLevel,
		&out.Source,
		&out.CreatedAt,
		&out.Resolved,
		&out.ResolvedAt,
	)
	if err == nil {
		return out, true, nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		existing, lookupErr := d.GetOpenAlertByDevice(ctx, alert.DeviceID)
		if lookupErr != nil {
			return models.Alert{}, false, lookupErr
		}
		return existing, false, nil
	}
	return models.Alert{}, false, storageErr("insert alert", err)
}

// GetOpenAlertByDevice returns the unresolved alert for a device, if any.
func (d *DB) GetOpenAlertByDevice(ctx context.Context, deviceID string) (models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE device_id = $1 AND NOT resolved`, alertColumns)

	var out models.Alert
	err := d.Pool.QueryRow(ctx, query, deviceID).Scan(
		&out.ID,
		&out.DeviceID,
		&out.ConsumerID,
		&out.DistributorID,
		&out.TankLevel,
		&out.Source,
		&out.CreatedAt,
		&out.Resolved,
		&out.ResolvedAt,
	)
	if err != nil {
		return models.Alert{}, storageErr("get open alert", err)
	}
	return out, nil
}

// GetAlert fetches one alert by id.
func (d *DB) GetAlert(ctx context.Context, id string) (models.Alert, error) {
	query := fmt.Sprintf(`SELECT %s FROM alerts WHERE id = $1`, alertColumns)

	var out models.Alert
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&out.ID,
		&out.DeviceID,
		&out.ConsumerID,
		&out.DistributorID,
		&out.TankLevel,
		&out.Source,
		&out.CreatedAt,
		&out.Resolved,
		&out.ResolvedAt,
	)
	if err != nil {
		return models.Alert{}, storageErr("get alert", err)
	}
	return out, nil
}

// ListOpenAlerts returns all unresolved alerts for a distributor, oldest
// first (created_at, then id, for a deterministic order).
func (d *DB) ListOpenAlerts(ctx context.Context, distributorID string) ([]models.Alert, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM alerts
		WHERE distributor_id = $1 AND NOT resolved
		ORDER BY created_at ASC, id ASC`, alertColumns)

	rows, err := d.Pool.Query(ctx, query, distributorID)
	if err != nil {
		return nil, storageErr("list open alerts", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(
			&a.ID,
			&a.DeviceID,
			&a.ConsumerID,
			&a.DistributorID,
			&a.TankLevel,
			&a.Source,
			&a.CreatedAt,
			&a.Resolved,
			&a.ResolvedAt,
		); err != nil {
			return nil, storageErr("scan alert", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list open alerts", err)
	}
	return alerts, nil
}

// MarkAlertResolved flips an unresolved alert to resolved. Returns the number
// of rows updated: zero means the alert was already resolved or absent, which
// the caller disambiguates with GetAlert.
func (d *DB) MarkAlertResolved(ctx context.Context, id string, resolvedAt time.Time) (int64, error) {
	tag, err := d.Pool.Exec(ctx,
		`UPDATE alerts SET resolved = true, resolved_at = $2 WHERE id = $1 AND NOT resolved`,
		id, resolvedAt)
	if err != nil {
		return 0, storageErr("resolve alert", err)
	}
	return tag.RowsAffected(), nil
}
