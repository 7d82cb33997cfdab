package neo4j

import (
	"context"
	"errors"
	"fmt"

	"docgraph/pkg/logger"
	"docgraph/pkg/store"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const vectorIndexName = "vector"

var _ store.GraphStore = (*Store)(nil)

// Store is a GraphStore backed by Neo4j. Every operation runs in a managed
// transaction, so transient cluster errors are retried by the driver.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jStoreParams defines the connection parameters of a Store.
// Database may be empty to use the server's default database.
type NewNeo4jStoreParams struct {
	URI      string
	Username string
	Password string
	Database string
}

// NewNeo4jStore connects to Neo4j and verifies connectivity.
//
// Example:
//
//	s, err := neo4j.NewNeo4jStore(ctx, neo4j.NewNeo4jStoreParams{
//		URI:      "neo4j://localhost:7687",
//		Username: "neo4j",
//		Password: "password",
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer s.Close(ctx)
func NewNeo4jStore(ctx context.Context, params NewNeo4jStoreParams) (*Store, error) {
	auth := neo4j.BasicAuth(params.Username, params.Password, "")
	driver, err := neo4j.NewDriverWithContext(params.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("failed to connect to neo4j: %w", err)
	}
	logger.Info("[Store] Connected to Neo4j", "uri", params.URI, "database", params.Database)

	return NewNeo4jStoreWithDriver(driver, params.Database), nil
}

// NewNeo4jStoreWithDriver creates a Store from an existing driver.
func NewNeo4jStoreWithDriver(driver neo4j.DriverWithContext, database string) *Store {
	return &Store{driver: driver, database: database}
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: s.database,
		AccessMode:   mode,
	})
}

// executeWrite runs work in a managed write transaction.
func executeWrite[T any](ctx context.Context, s *Store, work func(tx neo4j.ManagedTransaction) (T, error)) (T, error) {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(tx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// executeRead runs work in a managed read transaction.
func executeRead[T any](ctx context.Context, s *Store, work func(tx neo4j.ManagedTransaction) (T, error)) (T, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return work(tx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.(T), nil
}

// run executes a statement and discards its records.
func run(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) error {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return err
	}
	_, err = result.Consume(ctx)
	return err
}

// collect executes a statement and returns all records.
func collect(ctx context.Context, tx neo4j.ManagedTransaction, query string, params map[string]any) ([]*neo4j.Record, error) {
	result, err := tx.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

const equivalentSchemaRuleCode = "Neo.ClientError.Schema.EquivalentSchemaRuleAlreadyExists"

// isAlreadyExists reports whether err means an identical index or
// constraint is already present.
func isAlreadyExists(err error) bool {
	var nerr *neo4j.Neo4jError
	if errors.As(err, &nerr) {
		return nerr.Code == equivalentSchemaRuleCode
	}
	return false
}
