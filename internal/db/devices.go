package db

import (
	"context"
	"fmt"

	"tank-monitor-service/internal/models"
)

const deviceColumns = `devices.id, devices.measurement, devices.tank_level, devices."timestamp",
       COALESCE(devices.consumer_id, ''), COALESCE(devices.location, ''), COALESCE(devices.tank_type, '')`

// ListDevices returns devices matching filter, newest report first. The
// filter must already be resolved to at most one dimension; the join chain
// mirrors the consumer → distributor → manufacturer hierarchy.
func (d *DB) ListDevices(ctx context.Context, filter models.DeviceFilter, limit, offset int) ([]models.Device, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 5000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	joins := ""
	where := ""
	args := []interface{}{}

	switch {
	case filter.ManufacturerID != "":
		joins = `
			JOIN consumer ON devices.consumer_id = consumer.consumer_id
			JOIN distributor ON consumer.distributor_id = distributor.distributor_id
			JOIN manufacturer ON distributor.manufacturer_id = manufacturer.manufacturer_id`
		where = `WHERE manufacturer.manufacturer_id = $1`
		args = append(args, filter.ManufacturerID)
	case filter.DistributorID != "":
		joins = `
			JOIN consumer ON devices.consumer_id = consumer.consumer_id
			JOIN distributor ON consumer.distributor_id = distributor.distributor_id`
		where = `WHERE distributor.distributor_id = $1`
		args = append(args, filter.DistributorID)
	case filter.ConsumerID != "":
		joins = `
			JOIN consumer ON devices.consumer_id = consumer.consumer_id`
		where = `WHERE consumer.consumer_id = $1`
		args = append(args, filter.ConsumerID)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM devices
		%s
		%s
		ORDER BY devices."timestamp" DESC, devices.id
		LIMIT $%d OFFSET $%d`,
		deviceColumns, joins, where, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := d.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list devices", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		var dev models.Device
		if err := rows.Scan(
			&dev.ID,
			&dev.Measurement,
			&dev.TankLevelCm,
			&dev.Timestamp,
			&dev.ConsumerID,
			&dev.Location,
			&dev.TankType,
		); err != nil {
			return nil, storageErr("scan device", err)
		}
		devices = append(devices, dev)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list devices", err)
	}
	return devices, nil
}

// GetDevice fetches one device by id.
func (d *DB) GetDevice(ctx context.Context, id string) (models.Device, error) {
	query := fmt.Sprintf(`SELECT %s FROM devices WHERE devices.id = $1`, deviceColumns)

	var dev models.Device
	err := d.Pool.QueryRow(ctx, query, id).Scan(
		&dev.ID,
		&dev.Measurement,
		&dev.TankLevelCm,
		&dev.Timestamp,
		&dev.ConsumerID,
		&dev.Location,
		&dev.TankType,
	)
	if err != nil {
		return models.Device{}, storageErr("get device", err)
	}
	return dev, nil
}

// UpdateDeviceFields applies a partial location/tank_type patch and returns
// the updated device.
func (d *DB) UpdateDeviceFields(ctx context.Context, id string, patch models.DevicePatch) (models.Device, error) {
	if patch.Empty() {
		return d.GetDevice(ctx, id)
	}

	query := fmt.Sprintf(`
		UPDATE devices SET
			location = COALESCE($2, location),
			tank_type = COALESCE($3, tank_type)
		WHERE id = $1
		RETURNING %s`, deviceColumns)

	var dev models.Device
	err := d.Pool.QueryRow(ctx, query, id, patch.Location, patch.TankType).Scan(
		&dev.ID,
		&dev.Measurement,
		&dev.TankLevelCm,
		&dev.Timestamp,
		&dev.ConsumerID,
		&dev.Location,
		&dev.TankType,
	)
	if err != nil {
		return models.Device{}, storageErr("update device", err)
	}
	return dev, nil
}

// UpsertReading records the latest reading for a device, inserting the row if
// the device has not reported before.
func (d *DB) UpsertReading(ctx context.Context, r models.Reading) error {
	query := `
		INSERT INTO devices (id, measurement, tank_level, "timestamp")
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			measurement = EXCLUDED.measurement,
			tank_level = EXCLUDED.tank_level,
			"timestamp" = EXCLUDED."timestamp"`

	if _, err := d.Pool.Exec(ctx, query, r.DeviceID, r.Measurement, r.TankLevelCm, r.Timestamp); err != nil {
		return storageErr("upsert reading", err)
	}
	return nil
}
