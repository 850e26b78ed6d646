package postgres

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledger/internal/services"
	"ledger/internal/storage/storagetest"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	if os.Getenv("TEST_POSTGRES_HOST") == "" {
		t.Skip("TEST_POSTGRES_HOST not set, skipping integration test")
	}
	port, _ := strconv.Atoi(os.Getenv("TEST_POSTGRES_PORT"))
	return Config{
		Host:     os.Getenv("TEST_POSTGRES_HOST"),
		Port:     port,
		Database: os.Getenv("TEST_POSTGRES_DB"),
		User:     os.Getenv("TEST_POSTGRES_USER"),
		Password: os.Getenv("TEST_POSTGRES_PASSWORD"),
	}
}

func TestConfig_ConnStringQuotesValues(t *testing.T) {
	cfg := Config{
		Host:     "db.internal",
		Port:     6432,
		Database: "my ledger",
		User:     "o'brien",
		Password: `p@ss word\'x`,
		SSLMode:  "disable",
	}
	pc, err := pgxpool.ParseConfig(cfg.ConnString())
	require.NoError(t, err)
	assert.Equal(t, "db.internal", pc.ConnConfig.Host)
	assert.EqualValues(t, 6432, pc.ConnConfig.Port)
	assert.Equal(t, "my ledger", pc.ConnConfig.Database)
	assert.Equal(t, "o'brien", pc.ConnConfig.User)
	assert.Equal(t, `p@ss word\'x`, pc.ConnConfig.Password)
}

func TestNew_ConnectionFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := New(ctx, Config{
		Host:     "nonexistent-host.invalid",
		Database: "ledger",
		User:     "ledger",
		Password: "password",
	}, slog.New(slog.NewTextHandler(os.Stdout, nil)))
	assert.Error(t, err)
}

func TestConfig_ConnString(t *testing.T) {
	cfg := Config{Host: "db", Port: 5433, Database: "ledger", User: "u", Password: "p", SSLMode: "require"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=ledger sslmode=require", cfg.ConnString())
}

func TestRepositoryContract(t *testing.T) {
	cfg := testConfig(t)
	storagetest.Run(t, func(t *testing.T) services.Repository {
		ctx := context.Background()
		repo, err := New(ctx, cfg, nil)
		require.NoError(t, err)
		_, err = repo.pool.Exec(ctx, `TRUNCATE ledger_expenses, ledger_categories`)
		require.NoError(t, err)
		t.Cleanup(func() { repo.Close() })
		return repo
	})
}
