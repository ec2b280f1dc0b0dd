package postgres

import (
	"context"

	kpool "github.com/flowpool/flowpool/pkg/conn/db/postgres/pool"
)

// schema is applied on startup. Statements are idempotent so that every
// daemon can run them without coordination.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS "pool" (
		"name" varchar(255) PRIMARY KEY,
		"worker_type" varchar(16) NOT NULL,
		"max_concurrency" integer NOT NULL DEFAULT 0,
		"paused" boolean NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS "run" (
		"run_id" char(36) PRIMARY KEY,
		"pool_name" varchar(255) NOT NULL REFERENCES "pool" ("name"),
		"status" varchar(16) NOT NULL DEFAULT 'waiting',
		"worker_name" varchar(255) NOT NULL DEFAULT '',
		"lease_until" timestamp with time zone,
		"image" text NOT NULL DEFAULT '',
		"command" jsonb NOT NULL DEFAULT '[]'::jsonb,
		"volumes" jsonb NOT NULL DEFAULT '[]'::jsonb,
		"env" jsonb NOT NULL DEFAULT '{}'::jsonb,
		"network" text NOT NULL DEFAULT '',
		"params" jsonb NOT NULL DEFAULT '{}'::jsonb,
		"prev_run_id" char(36),
		"exit_code" smallint,
		"exit_reason" text,
		"submitted_at" timestamp with time zone NOT NULL DEFAULT now(),
		"updated_at" timestamp with time zone NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS "run_claim_order"
		ON "run" ("pool_name", "status", "submitted_at")`,
	`CREATE INDEX IF NOT EXISTS "run_lease"
		ON "run" ("lease_until") WHERE "lease_until" IS NOT NULL`,
	`CREATE TABLE IF NOT EXISTS "run_log" (
		"seq" bigserial PRIMARY KEY,
		"run_id" char(36) NOT NULL REFERENCES "run" ("run_id") ON DELETE CASCADE,
		"chunk" bytea NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS "run_log_by_run" ON "run_log" ("run_id", "seq")`,
}

func ensureSchema(ctx context.Context, p kpool.Pool) error {
	for _, stmt := range schema {
		if _, err := p.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
