package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found — using system environment variables")
	}

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("DB_DSN not set")
	}

	ctx := context.Background()

	fmt.Println("Connecting to Postgres...")
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("Connection failed: %v", err)
	}
	defer conn.Close(ctx)
	fmt.Println("Connected")

	hierarchyTables(ctx, conn)
	deviceTable(ctx, conn)
	alertTables(ctx, conn)
	indexes(ctx, conn)

	fmt.Println("Database initialised successfully")
}

func hierarchyTables(ctx context.Context, conn *pgx.Conn) {
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS manufacturer (
			manufacturer_id TEXT PRIMARY KEY,
			name            TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, "manufacturer table")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS distributor (
			distributor_id  TEXT PRIMARY KEY,
			manufacturer_id TEXT NOT NULL REFERENCES manufacturer(manufacturer_id),
			name            TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, "distributor table")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS consumer (
			consumer_id    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
			name           TEXT NOT NULL UNIQUE,
			password       TEXT NOT NULL,
			role           TEXT NOT NULL CHECK (role IN ('admin', 'distributor', 'user')),
			distributor_id TEXT REFERENCES distributor(distributor_id),
			created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, "consumer table")

	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS distributor_contact (
			distributor_id   TEXT PRIMARY KEY REFERENCES distributor(distributor_id),
			contact_type     TEXT NOT NULL CHECK (contact_type IN ('email', 'telegram')),
			email            TEXT,
			telegram_chat_id BIGINT
		)`, "distributor_contact table")
}

func deviceTable(ctx context.Context, conn *pgx.Conn) {
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS devices (
			id          TEXT PRIMARY KEY,
			measurement DOUBLE PRECISION NOT NULL DEFAULT 0,
			tank_level  DOUBLE PRECISION NOT NULL DEFAULT 0,
			"timestamp" TIMESTAMPTZ NOT NULL DEFAULT now(),
			consumer_id TEXT REFERENCES consumer(consumer_id),
			location    TEXT,
			tank_type   TEXT
		)`, "devices table")
}

func alertTables(ctx context.Context, conn *pgx.Conn) {
	execOrFatal(ctx, conn, `
		CREATE TABLE IF NOT EXISTS alerts (
			id             TEXT PRIMARY KEY,
			device_id      TEXT NOT NULL REFERENCES devices(id),
			consumer_id    TEXT NOT NULL,
			distributor_id TEXT NOT NULL,
			tank_level     DOUBLE PRECISION NOT NULL,
			source         TEXT NOT NULL CHECK (source IN ('manual', 'threshold')),
			created_at     TIMESTAMPTZ NOT NULL,
			resolved       BOOLEAN NOT NULL DEFAULT false,
			resolved_at    TIMESTAMPTZ
		)`, "alerts table")
}

func indexes(ctx context.Context, conn *pgx.Conn) {
	// The dedup guard: at most one unresolved alert per device, enforced by
	// the database so concurrent creators race safely.
	execOrFatal(ctx, conn, `
		CREATE UNIQUE INDEX IF NOT EXISTS alerts_open_device_idx
		ON alerts (device_id) WHERE NOT resolved`, "open alert dedup index")

	execOrFatal(ctx, conn, `
		CREATE INDEX IF NOT EXISTS alerts_distributor_open_idx
		ON alerts (distributor_id, created_at) WHERE NOT resolved`, "distributor open alerts index")

	execOrFatal(ctx, conn, `
		CREATE INDEX IF NOT EXISTS devices_consumer_idx
		ON devices (consumer_id)`, "devices consumer index")

	execOrFatal(ctx, conn, `
		CREATE INDEX IF NOT EXISTS devices_timestamp_idx
		ON devices ("timestamp" DESC)`, "devices timestamp index")
}

func execOrFatal(ctx context.Context, conn *pgx.Conn, sql, what string) {
	if _, err := conn.Exec(ctx, sql); err != nil {
		log.Fatalf("Failed to create %s: %v", what, err)
	}
	fmt.Printf("  ok: %s\n", what)
}
