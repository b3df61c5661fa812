// Package postgresdb provides a PostgreSQL-based implementation of the users storage.
// All requests share one bounded connection pool; every query is bound to the
// caller's context and to the configured query timeout.
package postgresdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/userapi/internal/user"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const migrationsDir = "migrations"

// PostgresDB is a PostgreSQL-backed users storage.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
	queryTimeout      time.Duration
}

type initOptions struct {
	DBPreReset      bool
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset enables or disables dropping every table before migration.
// It is meant for test setups.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// WithPool bounds the connection pool shared by all requests.
func WithPool(maxOpenConns, maxIdleConns int, connMaxLifetime time.Duration) InitOption {
	return func(options *initOptions) {
		options.MaxOpenConns = maxOpenConns
		options.MaxIdleConns = maxIdleConns
		options.ConnMaxLifetime = connMaxLifetime
	}
}

// New opens the connection pool, checks connectivity within connectionTimeout,
// applies the embedded migrations and returns a ready PostgresDB.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	queryTimeout time.Duration,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset:      false,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `sql.Open()` calling: %w", err)
	}
	database.SetMaxOpenConns(options.MaxOpenConns)
	database.SetMaxIdleConns(options.MaxIdleConns)
	database.SetConnMaxLifetime(options.ConnMaxLifetime)

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
		queryTimeout:      queryTimeout,
	}

	if err := result.Ping(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `result.Ping()` calling: %w", err)
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			_ = database.Close()
			return nil, err
		}
	}

	if err := result.migrate(ctx); err != nil {
		_ = database.Close()
		return nil, err
	}

	return result, nil
}

func (db *PostgresDB) migrate(ctx context.Context) error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/migrate(): error while `goose.SetDialect()` calling: %w", err)
	}

	if err := goose.UpContext(ctx, db.database, migrationsDir); err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/migrate(): error while `goose.UpContext()` calling: %w", err)
	}

	return nil
}

// ListUsers returns at most limit users ordered by id.
func (db *PostgresDB) ListUsers(ctx context.Context, limit int) ([]user.User, error) {
	ctx, cancel := context.WithTimeout(ctx, db.queryTimeout)
	defer cancel()

	rows, err := db.database.QueryContext(
		ctx,
		`SELECT id, name, email FROM users ORDER BY id LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]user.User, 0, limit)
	for rows.Next() {
		var usr user.User
		if err := rows.Scan(&usr.ID, &usr.Name, &usr.Email); err != nil {
			return nil, err
		}
		result = append(result, usr)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// GetUserByID fetches a user by id. A missing row is reported
// through the boolean, not as an error.
func (db *PostgresDB) GetUserByID(ctx context.Context, id int64) (*user.User, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, db.queryTimeout)
	defer cancel()

	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, name, email FROM users WHERE id = $1::bigint`,
		id,
	)
	var usr user.User
	err := row.Scan(&usr.ID, &usr.Name, &usr.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}

	return &usr, true, nil
}

// GetNumberOfUsers counts the rows of the users table.
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, db.queryTimeout)
	defer cancel()

	var count int64
	if err := db.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, err
	}

	return count, nil
}

// Ping verifies connectivity with the PostgreSQL database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the pool and releases any associated resources.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}
