//go:build integration

package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/JonMunkholm/dohpipeline/internal/checkpoint"
	"github.com/JonMunkholm/dohpipeline/internal/config"
	"github.com/JonMunkholm/dohpipeline/internal/loader"
)

var (
	pgURL     string
	pgURLOnce sync.Once
	pgURLErr  error
)

// postgresURL starts one PostgreSQL container for the whole test run.
func postgresURL(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	pgURLOnce.Do(func() {
		pgURL, pgURLErr = startPostgres()
	})
	if pgURLErr != nil {
		t.Fatalf("Failed to start postgres: %v", pgURLErr)
	}
	return pgURL
}

func startPostgres() (string, error) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "doh",
			"POSTGRES_USER":     "doh",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return "", fmt.Errorf("failed to get container port: %w", err)
	}

	return fmt.Sprintf("postgres://doh:test_password@%s:%s/doh?sslmode=disable", host, port.Port()), nil
}

func TestPostgresLoad(t *testing.T) {
	ctx := context.Background()

	db, err := Open(ctx, config.DatabaseConfig{
		Driver:   "postgres",
		URL:      postgresURL(t),
		MaxConns: 4,
	})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Migrate(ctx))
	require.NoError(t, db.Migrate(ctx))

	store := db.Checkpoints()
	require.NoError(t, store.Clear(ctx, checkpoint.LoadKey("inspection")))

	cfg := loader.Config{
		Table:     "inspection",
		Columns:   []string{"camis", "inspection_date", "action", "score", "grade", "grade_date", "inspection_type"},
		BatchSize: 2,
	}
	l, err := loader.New(cfg, db.Opener(), store, loader.WithRunID("it"))
	require.NoError(t, err)

	rows := rowsOf(
		[]string{"30075445", "2019/05/16", "Violations were cited", "12", "A", "2019/05/16", "Cycle Inspection / Initial Inspection"},
		[]string{"30075445", "2018/05/11", "Violations were cited", "", "Unknown", "", "Cycle Inspection / Re-inspection"},
		[]string{"30112340", "2019/08/26", "No violations", "0", "Pending", "", "Pre-permit (Operational)"},
	)

	res, err := l.Load(ctx, rows, true)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Rows)
	assert.Equal(t, 2, res.Batches)

	var n int
	require.NoError(t, db.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM inspection").Scan(&n))
	assert.Equal(t, 3, n)

	var score *int
	require.NoError(t, db.Pool.QueryRow(ctx,
		"SELECT score FROM inspection WHERE inspection_date = DATE '2018-05-11'").Scan(&score))
	assert.Nil(t, score)

	m, err := store.Get(ctx, checkpoint.LoadKey("inspection"))
	require.NoError(t, err)
	assert.Equal(t, "it", m.RunID)

	res, err = l.Load(ctx, rows, false)
	require.NoError(t, err)
	assert.True(t, res.Skipped)
}

func TestPostgresUpsertRepeatedKey(t *testing.T) {
	ctx := context.Background()

	db, err := Open(ctx, config.DatabaseConfig{
		Driver:   "postgres",
		URL:      postgresURL(t),
		MaxConns: 4,
	})
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.Migrate(ctx))

	cfg := restaurantCfg
	cfg.BatchSize = 10
	l, err := loader.New(cfg, db.Opener(), db.Checkpoints())
	require.NoError(t, err)

	res, err := l.Load(ctx, rowsOf(
		[]string{"30075445", "MORRIS PARK BAKE SHOP", "Bronx", "1007", "MORRIS PARK AVE", "10462", "7188924968", "Bakery", "2019/05/16"},
		[]string{"30075445", "MORRIS PARK BAKERY", "Bronx", "1007", "MORRIS PARK AVE", "10462", "7188924968", "Bakery", "2020/01/02"},
	), true)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Batches)

	var name string
	require.NoError(t, db.Pool.QueryRow(ctx, "SELECT dba FROM restaurant WHERE camis = 30075445").Scan(&name))
	assert.Equal(t, "MORRIS PARK BAKERY", name)
}
