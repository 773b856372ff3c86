package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cesa-network/cesavote/pkg/retry"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestClassifyConnectErrorStopsOnBadCredentials(t *testing.T) {
	for _, code := range []string{"28P01", "28000", "3D000"} {
		err := fmt.Errorf("failed to ping postgres: %w", &pgconn.PgError{Code: code})
		calls := 0
		got := retry.WithBackoff(context.Background(), retry.Config{MaxRetries: 5, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1},
			zaptest.NewLogger(t), "connect", func() error {
				calls++
				return classifyConnectError(err)
			})
		assert.Equal(t, 1, calls, code)
		assert.Same(t, err, got, code)
	}
}

func TestClassifyConnectErrorRetriesTransient(t *testing.T) {
	refused := errors.New("connection refused")
	assert.Same(t, refused, classifyConnectError(refused))

	busy := &pgconn.PgError{Code: "57P03"} // cannot_connect_now
	assert.Same(t, error(busy), classifyConnectError(busy))
}

func TestIsUniqueViolation(t *testing.T) {
	assert.True(t, IsUniqueViolation(fmt.Errorf("insert: %w", &pgconn.PgError{Code: uniqueViolation})))
	assert.False(t, IsUniqueViolation(errors.New("other")))
}
