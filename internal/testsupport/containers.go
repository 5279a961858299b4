// Package testsupport starts throwaway backing stores for integration tests.
// Every helper skips the test under -short or when no container runtime is
// reachable.
package testsupport

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	dynamoImage   = "amazon/dynamodb-local:2.5.2"
	dynamoPort    = "8000/tcp"
	postgresImage = "postgres:16-alpine"

	// LocalRegion is the region used against DynamoDB Local.
	LocalRegion = "us-east-1"
)

func skipUnlessIntegration(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
}

// StartDynamoDB runs DynamoDB Local and returns its http endpoint. The
// container is removed when the test ends.
func StartDynamoDB(t *testing.T) string {
	t.Helper()
	skipUnlessIntegration(t)
	ctx := context.Background()

	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        dynamoImage,
			ExposedPorts: []string{dynamoPort},
			Cmd:          []string{"-jar", "DynamoDBLocal.jar", "-inMemory", "-sharedDb"},
			WaitingFor:   wait.ForListeningPort(dynamoPort).WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("failed to start dynamodb-local container: %v", err)
	}

	endpoint, err := ctr.PortEndpoint(ctx, dynamoPort, "http")
	if err != nil {
		t.Fatalf("failed to get dynamodb-local endpoint: %v", err)
	}
	return endpoint
}

// NewDynamoClient returns a client for a DynamoDB Local endpoint.
func NewDynamoClient(endpoint string) *dynamodb.Client {
	return dynamodb.New(dynamodb.Options{
		BaseEndpoint: aws.String(endpoint),
		Region:       LocalRegion,
		Credentials:  credentials.NewStaticCredentialsProvider("local", "local", ""),
	})
}

// StartPostgres runs PostgreSQL and returns a pool connected to it. The pool
// and container are closed when the test ends.
func StartPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	skipUnlessIntegration(t)
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		postgresImage,
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	testcontainers.CleanupContainer(t, pgContainer)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := pool.Ping(ctx); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}
	return pool
}
