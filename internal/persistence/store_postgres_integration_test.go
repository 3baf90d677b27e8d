//go:build integration
// +build integration

package persistence

import (
	"context"
	"os"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/freight-session/internal/config"
)

func TestPostgresStoreIntegration(t *testing.T) {
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	ctx := context.Background()
	logger := zap.NewNop()

	pg, err := NewPostgres(ctx, config.PostgresConfig{DSN: dsn}, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer pg.Close()

	if err := RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if err := RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
		t.Fatalf("migrations rerun: %v", err)
	}

	exerciseStore(t, NewPostgresStore(pg.PoolHandle()))
}
