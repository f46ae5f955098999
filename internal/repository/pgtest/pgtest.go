// Package pgtest starts a throwaway PostgreSQL container for repository
// tests and installs the market schema into it.
package pgtest

import (
	"flag"
	"fmt"
	"log"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/ory/dockertest"
	"github.com/ory/dockertest/docker"

	"github.com/josidbobo/IDConcordiumDEX/internal/repository/schema"

	// Register the Postgres database driver.
	_ "github.com/lib/pq"
)

const (
	user     = "postgres"
	password = "secret"
	port     = "5432"
	dsn      = "postgres://%s:%s@localhost:%s/%s?sslmode=disable"
	dbName   = "postgres"
)

var (
	db       *sqlx.DB
	startErr error
)

// Main wraps m.Run with a PostgreSQL container. Short runs and hosts without
// docker skip the container; tests then skip themselves through DB.
func Main(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		startErr = fmt.Errorf("postgres tests disabled in short mode")
		os.Exit(m.Run())
	}

	pool, err := dockertest.NewPool(os.Getenv("DOCKER_URL"))
	if err != nil {
		startErr = fmt.Errorf("creating docker pool: %w", err)
		os.Exit(m.Run())
	}

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "15",
		Env: []string{
			"POSTGRES_USER=" + user,
			"POSTGRES_PASSWORD=" + password,
			"POSTGRES_DB=" + dbName,
		},
		ExposedPorts: []string{port},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		startErr = fmt.Errorf("starting postgres container: %w", err)
		os.Exit(m.Run())
	}
	_ = resource.Expire(120)

	conn := fmt.Sprintf(dsn, user, password, resource.GetPort(port+"/tcp"), dbName)
	if err := pool.Retry(func() error {
		var err error
		db, err = sqlx.Connect("postgres", conn)
		return err
	}); err != nil {
		log.Fatalf("Connecting to database: %v", err)
	}
	if err := schema.Apply(db.DB); err != nil {
		log.Fatalf("Applying schema: %v", err)
	}

	code := m.Run()

	if err := pool.Purge(resource); err != nil {
		log.Printf("WARNING: Purging pool failed: %v", err)
	}
	if err := db.Close(); err != nil {
		log.Printf("WARNING: Closing database failed: %v", err)
	}
	os.Exit(code)
}

// DB returns the shared database with the given tables truncated, or skips
// the test when no container is running.
func DB(t *testing.T, tables ...string) *sqlx.DB {
	t.Helper()
	if db == nil {
		t.Skipf("postgres unavailable: %v", startErr)
	}
	for _, table := range tables {
		if _, err := db.Exec("TRUNCATE " + table + " RESTART IDENTITY"); err != nil {
			t.Fatalf("truncating %s: %v", table, err)
		}
	}
	return db
}
