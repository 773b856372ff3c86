//go:build integration

package election

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/cesa-network/cesavote/pkg/db"
	"github.com/cesa-network/cesavote/pkg/db/dbtest"
	"github.com/cesa-network/cesavote/pkg/db/postgres"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"go.uber.org/zap"
)

var testDB *DB

func TestMain(m *testing.M) {
	os.Exit(run(m))
}

func run(m *testing.M) int {
	ctx := context.Background()
	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		fmt.Println("Docker not available, skipping integration tests")
		return 0
	}
	_ = provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("cesavote"),
		tcpostgres.WithUsername("cesavote"),
		tcpostgres.WithPassword("cesavote"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		logger.Error("Failed to start PostgreSQL container", zap.Error(err))
		return 1
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			logger.Warn("Failed to terminate container", zap.Error(err))
		}
	}()

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		logger.Error("Failed to get connection string", zap.Error(err))
		return 1
	}

	initCtx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()
	testDB, err = New(initCtx, logger, dsn, postgres.GetPoolConfigForComponent("test"))
	if err != nil {
		logger.Error("Failed to open store", zap.Error(err))
		return 1
	}
	defer testDB.Close()

	return m.Run()
}

func cleanDB(t *testing.T) db.Store {
	t.Helper()
	err := testDB.Exec(context.Background(), `
		TRUNCATE ledger_records, votes, candidate_members, candidates, elections, voters, accounts
		RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return testDB
}

func TestStoreSuite(t *testing.T) {
	dbtest.RunStoreSuite(t, cleanDB)
}
