// Package integration runs end-to-end tests against a real PostgreSQL
// instance started with testcontainers. Docker must be running.
package integration

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/resaleops/autopilot/internal/db"
)

// TestContainer holds the PostgreSQL container and the migrated connection.
type TestContainer struct {
	Container testcontainers.Container
	DB        *db.DB
	Config    *db.Config
}

// SetupTestContainer starts a PostgreSQL container and connects with the
// engine schema migrated.
func SetupTestContainer(t *testing.T) *TestContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 180*time.Second)
	defer cancel()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("autopilot_test"),
		postgres.WithUsername("autopilot_user"),
		postgres.WithPassword("autopilot_password"),
		testcontainers.WithWaitStrategy(
			wait.ForListeningPort("5432/tcp").WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	config := &db.Config{
		Host:     host,
		Port:     port.Port(),
		User:     "autopilot_user",
		Password: "autopilot_password",
		Name:     "autopilot_test",
		SSLMode:  "disable",
	}

	database, err := db.Connect(config)
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}

	tc := &TestContainer{Container: pgContainer, DB: database, Config: config}
	t.Cleanup(func() {
		tc.DB.Close()
		_ = tc.Container.Terminate(context.Background())
	})
	return tc
}
