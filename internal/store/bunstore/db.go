package bunstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite"

	"agenda/backend/internal/domain"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Open connects to databaseURL with the named driver. SQLite is limited to a
// single connection: it serializes writers, which is what the per-day locks
// rely on when advisory locks are unavailable.
func Open(driver, databaseURL string, pool PoolConfig) (*bun.DB, error) {
	switch driver {
	case DriverPostgres, "":
		return openPostgres(databaseURL, pool)
	case DriverSQLite:
		return OpenSQLite(databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}

func openPostgres(databaseURL string, pool PoolConfig) (*bun.DB, error) {
	sqlDB, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	if pool.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return bun.NewDB(sqlDB, pgdialect.New()), nil
}

func OpenSQLite(dsn string) (*bun.DB, error) {
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}

	return bun.NewDB(sqlDB, sqlitedialect.New()), nil
}

func Close(db *bun.DB) error {
	if db == nil {
		return nil
	}
	return db.Close()
}

// Ping is the readiness probe used by the health reporter.
func Ping(db *bun.DB) func(context.Context) error {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database not configured")
		}
		return db.PingContext(ctx)
	}
}

var models = []any{
	(*domain.Appointment)(nil),
	(*domain.ServiceSlot)(nil),
	(*domain.Schedule)(nil),
	(*domain.ScheduleBlock)(nil),
	(*domain.OrphanedReservation)(nil),
	(*domain.ServiceInfo)(nil),
	(*domain.UserInfo)(nil),
}

type index struct {
	model   any
	name    string
	columns []string
}

var indexes = []index{
	{(*domain.Appointment)(nil), "appointments_staff_day_idx", []string{"staff_id", "day"}},
	{(*domain.Appointment)(nil), "appointments_slot_idx", []string{"service_id", "day", "start_time"}},
	{(*domain.ServiceSlot)(nil), "service_slots_key_idx", []string{"service_id", "day", "start_time"}},
	{(*domain.ServiceSlot)(nil), "service_slots_provider_day_idx", []string{"provider_id", "day"}},
	{(*domain.Schedule)(nil), "schedules_staff_day_idx", []string{"staff_id", "day_of_week"}},
	{(*domain.ScheduleBlock)(nil), "schedule_blocks_day_idx", []string{"day"}},
}

// CreateSchema creates every table and index the engine uses if they do not
// exist yet.
func CreateSchema(ctx context.Context, db *bun.DB) error {
	for _, m := range models {
		if _, err := db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("create table for %T: %w", m, err)
		}
	}
	for _, ix := range indexes {
		_, err := db.NewCreateIndex().
			Model(ix.model).
			Index(ix.name).
			Column(ix.columns...).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create index %s: %w", ix.name, err)
		}
	}
	return nil
}

// lockKey takes a transaction-scoped exclusive lock on key. On SQLite the
// single connection already serializes transactions.
func lockKey(ctx context.Context, tx bun.Tx, key string) error {
	if tx.Dialect().Name() != dialect.PG {
		return nil
	}
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", key).Exec(ctx)
	return err
}
