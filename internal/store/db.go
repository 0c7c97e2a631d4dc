package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"laikostar/internal/logging"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
)

const uniqueViolation = "23505"

var ErrFailCommTrans = errors.New("failed to commit transaction")

type Database struct {
	DBDSN string
	DB    *sqlx.DB
}

// New wraps an already opened handle. Tests pass a sqlmock connection here.
func New(db *sqlx.DB) *Database {
	return &Database{DB: db}
}

func (ms *Database) NewStorage(ctx context.Context, DBDSN string) error {
	var err error
	ms.DBDSN = DBDSN

	if ms.DB, err = sqlx.Open("pgx", ms.DBDSN); err != nil {
		logging.Logg.Error("Couldn't connect to the database with an error", "error", err)
		return err
	}
	if err = ms.DB.PingContext(ctx); err != nil {
		logging.Logg.Error("Database is not reachable", "error", err)
		return err
	}

	if err = ms.initDBTables(ctx); err != nil {
		logging.Logg.Error("Failed to initialize DB", "error", err)
		return err
	}
	logging.Logg.Info("Database connection was created")
	return nil
}

func (ms *Database) Close() error {
	return ms.DB.Close()
}

func (ms *Database) Ping(ctx context.Context) error {
	return ms.DB.PingContext(ctx)
}

func (ms *Database) initDBTables(ctx context.Context) error {
	var errs []error
	stmts := []string{
		`create table if not exists users (
			user_id BIGSERIAL PRIMARY KEY,
			username VARCHAR(100) NOT NULL UNIQUE,
			email VARCHAR(255) NOT NULL UNIQUE,
			full_name VARCHAR(255) NOT NULL,
			password_hash VARCHAR(60) NOT NULL,
			phone_number VARCHAR(30) NOT NULL,
			profile_picture TEXT,
			account_type VARCHAR(30) NOT NULL DEFAULT 'Starter',
			plan VARCHAR(100),
			plan_activation_date TIMESTAMPTZ,
			ref_per DECIMAL(5, 2) NOT NULL DEFAULT 0,
			ref_parent_per DECIMAL(5, 2) NOT NULL DEFAULT 0,
			balance DECIMAL(14, 2) NOT NULL DEFAULT 0.00 CHECK (balance >= 0),
			held_balance DECIMAL(14, 2) NOT NULL DEFAULT 0.00 CHECK (held_balance >= 0),
			withdrawal_balance DECIMAL(14, 2) NOT NULL DEFAULT 0.00,
			bonus_balance DECIMAL(14, 2) NOT NULL DEFAULT 0.00,
			pending_commission DECIMAL(14, 2) NOT NULL DEFAULT 0.00,
			total_points DECIMAL(14, 2) NOT NULL DEFAULT 0.00,
			advance_points DECIMAL(14, 2) NOT NULL DEFAULT 0.00,
			daily_task_limit INT NOT NULL DEFAULT 10,
			tasks_completed_today INT NOT NULL DEFAULT 0,
			last_completed_date TIMESTAMPTZ,
			parent_id BIGINT REFERENCES users(user_id),
			referral_code VARCHAR(100) NOT NULL UNIQUE,
			referrer_code VARCHAR(100),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (held_balance <= balance),
			CHECK (tasks_completed_today <= daily_task_limit)
		);`,

		`create index if not exists users_parent_idx on users(parent_id);`,

		`create table if not exists tasks (
			task_id BIGSERIAL PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			description TEXT NOT NULL,
			reward DECIMAL(14, 2) NOT NULL CHECK (reward >= 0),
			image TEXT,
			completed_count BIGINT NOT NULL DEFAULT 0,
			redirect_link TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`create table if not exists task_transactions (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(100) NOT NULL,
			task_id BIGINT NOT NULL REFERENCES tasks(task_id),
			amount DECIMAL(14, 2) NOT NULL,
			status VARCHAR(30) NOT NULL DEFAULT 'pending',
			transaction_type VARCHAR(30) NOT NULL,
			description TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`create table if not exists task_history (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			task_id BIGINT NOT NULL REFERENCES tasks(task_id),
			completed_at TIMESTAMPTZ NOT NULL,
			reward DECIMAL(14, 2) NOT NULL
		);`,

		`create table if not exists transaction_history (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			type VARCHAR(10) NOT NULL,
			amount DECIMAL(14, 2) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`create table if not exists commission_pending_tasks (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			task_id BIGINT NOT NULL REFERENCES tasks(task_id),
			commission_amount DECIMAL(14, 2) NOT NULL,
			release_date TIMESTAMPTZ NOT NULL,
			released_at TIMESTAMPTZ
		);`,

		`create index if not exists commission_due_idx on commission_pending_tasks(release_date) where released_at is null;`,

		`create table if not exists withdrawal_requests (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(user_id),
			amount DECIMAL(14, 2) NOT NULL CHECK (amount > 0),
			status VARCHAR(30) NOT NULL DEFAULT 'pending',
			gateway VARCHAR(50) NOT NULL,
			account_number VARCHAR(100) NOT NULL,
			account_title VARCHAR(255) NOT NULL,
			remarks TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`create table if not exists user_pending (
			id BIGSERIAL PRIMARY KEY,
			plan_name VARCHAR(100) NOT NULL,
			plan_price DECIMAL(14, 2) NOT NULL,
			advance_points DECIMAL(14, 2) NOT NULL,
			direct_point DECIMAL(14, 2) NOT NULL,
			indirect_point DECIMAL(14, 2) NOT NULL,
			ref_per DECIMAL(5, 2) NOT NULL,
			ref_parent_per DECIMAL(5, 2) NOT NULL,
			referrer_pin VARCHAR(20) NOT NULL UNIQUE,
			referrer_id BIGINT NOT NULL REFERENCES users(user_id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`create table if not exists plans (
			plan_id BIGSERIAL PRIMARY KEY,
			name VARCHAR(100) NOT NULL UNIQUE,
			price DECIMAL(14, 2) NOT NULL,
			advance_points DECIMAL(14, 2) NOT NULL,
			direct_point DECIMAL(14, 2) NOT NULL,
			indirect_point DECIMAL(14, 2) NOT NULL,
			parent_per DECIMAL(5, 2) NOT NULL CHECK (parent_per BETWEEN 0 AND 100),
			grand_parent_per DECIMAL(5, 2) NOT NULL CHECK (grand_parent_per BETWEEN 0 AND 100)
		);`,

		`create table if not exists payment_verifications (
			id BIGSERIAL PRIMARY KEY,
			kind VARCHAR(30) NOT NULL,
			username VARCHAR(100) NOT NULL,
			transaction_id VARCHAR(100) NOT NULL,
			transaction_amount DECIMAL(14, 2) NOT NULL,
			gateway VARCHAR(50) NOT NULL,
			receipt_path TEXT NOT NULL,
			status VARCHAR(30) NOT NULL DEFAULT 'pending',
			feedback TEXT,
			added_points DECIMAL(14, 2) NOT NULL DEFAULT 0,
			plan_name VARCHAR(100),
			plan_price DECIMAL(14, 2) NOT NULL DEFAULT 0,
			advance_points DECIMAL(14, 2) NOT NULL DEFAULT 0,
			direct_point DECIMAL(14, 2) NOT NULL DEFAULT 0,
			indirect_point DECIMAL(14, 2) NOT NULL DEFAULT 0,
			ref_per DECIMAL(5, 2) NOT NULL DEFAULT 0,
			ref_parent_per DECIMAL(5, 2) NOT NULL DEFAULT 0,
			referrer_pin VARCHAR(20) UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			CHECK (kind <> 'referral_plan' OR (plan_name IS NOT NULL AND referrer_pin IS NOT NULL))
		);`,

		`create table if not exists user_accounts (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(100) NOT NULL,
			gateway VARCHAR(50) NOT NULL,
			account_number VARCHAR(100) NOT NULL,
			account_title VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`create table if not exists notifications (
			id BIGSERIAL PRIMARY KEY,
			username VARCHAR(100) NOT NULL,
			message TEXT NOT NULL,
			type VARCHAR(20) NOT NULL DEFAULT 'message',
			status VARCHAR(20) NOT NULL DEFAULT 'unread',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,

		`create table if not exists settings (
			key VARCHAR(100) PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
	}

	for _, s := range stmts {
		_, err := ms.DB.ExecContext(ctx, s)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// withTx runs fn inside a transaction and rolls back when fn or the commit fails.
func (ms *Database) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := ms.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err == nil {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logging.Logg.Error("Failed to roll back transaction", "error", rbErr)
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		logging.Logg.Error("Failed to commit transaction", "error", err)
		return fmt.Errorf("%w: %w", ErrFailCommTrans, err)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// mustAffect turns a zero row update into notFound.
func mustAffect(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}
