//go:build integration

package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var testDB *sql.DB

// TestMain sets up the test environment
func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := setupTestDatabase(ctx)
	if err != nil {
		log.Fatalf("Failed to setup test database: %v", err)
	}

	code := m.Run()

	if testDB != nil {
		testDB.Close()
	}
	if container != nil {
		_ = container.Terminate(ctx)
	}

	os.Exit(code)
}

// setupTestDatabase creates a PostgreSQL container for testing
func setupTestDatabase(ctx context.Context) (testcontainers.Container, error) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "carevault_test",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "testpass",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := postgres.Host(ctx)
	if err != nil {
		return postgres, fmt.Errorf("failed to get postgres host: %w", err)
	}

	port, err := postgres.MappedPort(ctx, "5432")
	if err != nil {
		return postgres, fmt.Errorf("failed to get postgres port: %w", err)
	}

	dsn := fmt.Sprintf("postgres://test:testpass@%s:%s/carevault_test?sslmode=disable", host, port.Port())

	testDB, err = sql.Open("postgres", dsn)
	if err != nil {
		return postgres, fmt.Errorf("failed to connect to test database: %w", err)
	}

	for i := 0; i < 30; i++ {
		if err := testDB.Ping(); err == nil {
			break
		}
		time.Sleep(time.Second)
	}

	if err := createTestSchema(); err != nil {
		return postgres, fmt.Errorf("failed to create test schema: %w", err)
	}

	return postgres, nil
}

// createTestSchema creates the consent event mirror schema
func createTestSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS consent_events (
		id UUID PRIMARY KEY,
		patient_id VARCHAR(128) NOT NULL,
		actor_id VARCHAR(128) NOT NULL,
		requester_id VARCHAR(128) NOT NULL,
		action VARCHAR(32) NOT NULL,
		request_index BIGINT NOT NULL DEFAULT -1,
		expires_at BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_consent_events_patient
		ON consent_events (patient_id, created_at DESC);`

	_, err := testDB.Exec(schema)
	return err
}
