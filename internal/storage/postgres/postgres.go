// Package postgres stores the ledger in PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ledger/internal/core"
)

//go:embed 001_create_ledger.sql
var migrationSQL string

const (
	uniqueViolation = "23505"
	expenseColumns  = `seq, id, owner_id, title, amount_cents, category_id, date, description, created_at, updated_at`
)

// Config holds the PostgreSQL connection settings.
type Config struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// MaxConns is the maximum number of connections in the pool.
	MaxConns int
}

var connValueEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// ConnString renders the settings as a libpq keyword/value string. Values
// are single-quoted so spaces and quotes survive; empty settings are left
// to the driver defaults.
func (c Config) ConnString() string {
	port := ""
	if c.Port != 0 {
		port = strconv.Itoa(c.Port)
	}
	settings := [][2]string{
		{"host", c.Host},
		{"port", port},
		{"user", c.User},
		{"password", c.Password},
		{"dbname", c.Database},
		{"sslmode", c.SSLMode},
	}
	parts := make([]string, 0, len(settings))
	for _, kv := range settings {
		if kv[1] == "" {
			continue
		}
		parts = append(parts, kv[0]+"='"+connValueEscaper.Replace(kv[1])+"'")
	}
	return strings.Join(parts, " ")
}

type Repository struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects, verifies the connection and applies the schema.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Port == 0 {
		cfg.Port = 5432
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "disable"
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 10
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.ConnString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection string: %w", err)
	}
	poolConfig.MaxConns = int32(cfg.MaxConns)
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logger.Info("connected to PostgreSQL",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Database,
	)

	if _, err := pool.Exec(ctx, migrationSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Repository{pool: pool, logger: logger}, nil
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repository) Close() error {
	r.pool.Close()
	return nil
}

func (r *Repository) InsertExpense(ctx context.Context, e core.Expense) (core.Expense, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO ledger_expenses (id, owner_id, title, amount_cents, category_id, date, description, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq`,
		e.ID, e.OwnerID, e.Title, e.Amount.Cents, e.CategoryID, e.Date.Time, e.Description, e.CreatedAt, e.UpdatedAt,
	).Scan(&e.Seq)
	if err != nil {
		if isUniqueViolation(err) {
			return core.Expense{}, fmt.Errorf("expense %s: %w", e.ID, core.ErrConflict)
		}
		return core.Expense{}, fmt.Errorf("insert expense: %w", err)
	}
	return e, nil
}

func (r *Repository) GetExpense(ctx context.Context, ownerID, id string) (core.Expense, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+expenseColumns+` FROM ledger_expenses WHERE owner_id = $1 AND id = $2`, ownerID, id)
	e, err := scanExpense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Expense{}, core.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return e, nil
}

func (r *Repository) UpdateExpense(ctx context.Context, e core.Expense) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE ledger_expenses
		SET title = $1, amount_cents = $2, category_id = $3, date = $4, description = $5, updated_at = $6
		WHERE owner_id = $7 AND id = $8`,
		e.Title, e.Amount.Cents, e.CategoryID, e.Date.Time, e.Description, e.UpdatedAt, e.OwnerID, e.ID,
	)
	if err != nil {
		return fmt.Errorf("update expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteExpense(ctx context.Context, ownerID, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM ledger_expenses WHERE owner_id = $1 AND id = $2`, ownerID, id)
	if err != nil {
		return fmt.Errorf("delete expense: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (r *Repository) ListExpenses(ctx context.Context, ownerID string) ([]core.Expense, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+expenseColumns+` FROM ledger_expenses WHERE owner_id = $1 ORDER BY seq`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer rows.Close()

	out := []core.Expense{}
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Repository) ListCategories(ctx context.Context, ownerID string) ([]core.Category, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, name, created_at FROM ledger_categories WHERE owner_id = $1 ORDER BY seq`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	out := []core.Category{}
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) InsertCategory(ctx context.Context, c core.Category) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO ledger_categories (id, owner_id, name, created_at) VALUES ($1, $2, $3, $4)`,
		c.ID, c.OwnerID, c.Name, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("category %q: %w", c.Name, core.ErrConflict)
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r *Repository) DeleteCategory(ctx context.Context, ownerID, id string) error {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM ledger_categories
		WHERE owner_id = $1 AND id = $2
		  AND NOT EXISTS (SELECT 1 FROM ledger_expenses WHERE owner_id = $1 AND category_id = $2)`,
		ownerID, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM ledger_categories WHERE owner_id = $1 AND id = $2)`, ownerID, id).Scan(&exists); err != nil {
		return fmt.Errorf("check category: %w", err)
	}
	if exists {
		return fmt.Errorf("category %s in use: %w", id, core.ErrConflict)
	}
	return core.ErrNotFound
}

func scanExpense(row pgx.Row) (core.Expense, error) {
	var (
		e    core.Expense
		date time.Time
	)
	err := row.Scan(&e.Seq, &e.ID, &e.OwnerID, &e.Title, &e.Amount.Cents, &e.CategoryID,
		&date, &e.Description, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return core.Expense{}, err
	}
	e.Date = core.DateOf(date)
	return e, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
