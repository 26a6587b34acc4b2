package postgres

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the StreamLock store (PostgreSQL).
var Migrations = migrate.NewGroup("streamlock")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_streamlock_locks",
			Version: "20260101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS streamlock_locks (
    id               TEXT PRIMARY KEY,
    payer            TEXT NOT NULL DEFAULT '',
    recipient        TEXT NOT NULL DEFAULT '',
    asset            TEXT NOT NULL DEFAULT '',
    total_amount     BIGINT NOT NULL DEFAULT 0,
    start_time       TIMESTAMPTZ NOT NULL DEFAULT now(),
    duration_ns      BIGINT NOT NULL DEFAULT 0,
    stream_type      TEXT NOT NULL DEFAULT 'linear',
    cliff_time       TIMESTAMPTZ NOT NULL DEFAULT now(),
    immediate_amount BIGINT NOT NULL DEFAULT 0,
    usage_count      BIGINT NOT NULL DEFAULT 0,
    used_count       BIGINT NOT NULL DEFAULT 0,
    active           BOOLEAN NOT NULL DEFAULT TRUE,
    settled          BOOLEAN NOT NULL DEFAULT FALSE,
    plan_key         TEXT NOT NULL DEFAULT '',
    created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_streamlock_locks_payer ON streamlock_locks (payer, created_at);
CREATE INDEX IF NOT EXISTS idx_streamlock_locks_recipient ON streamlock_locks (recipient, created_at);
CREATE INDEX IF NOT EXISTS idx_streamlock_locks_plan ON streamlock_locks (plan_key);
CREATE INDEX IF NOT EXISTS idx_streamlock_locks_active ON streamlock_locks (active);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS streamlock_locks`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_streamlock_balances",
			Version: "20260101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS streamlock_balances (
    account    TEXT NOT NULL,
    asset      TEXT NOT NULL,
    locked     BIGINT NOT NULL DEFAULT 0,
    unlocked   BIGINT NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (account, asset)
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS streamlock_balances`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_streamlock_authorized_callers",
			Version: "20260101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS streamlock_authorized_callers (
    account    TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS streamlock_authorized_callers`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_streamlock_params",
			Version: "20260101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS streamlock_params (
    id              INTEGER PRIMARY KEY CHECK (id = 1),
    min_amount      BIGINT NOT NULL DEFAULT 1,
    min_duration_ns BIGINT NOT NULL DEFAULT 0,
    max_duration_ns BIGINT NOT NULL DEFAULT 0,
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS streamlock_params`)
				return err
			},
		},
	)
}
