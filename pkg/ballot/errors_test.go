package ballot

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", newError(KindAlreadyVoted, "cast vote", nil))
	assert.ErrorIs(t, err, ErrAlreadyVoted)
	assert.NotErrorIs(t, err, ErrNotRegistered)
	assert.Equal(t, KindAlreadyVoted, KindOf(err))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("node said no")
	err := newError(KindSubmissionFailed, "submit", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "node said no")
}

func TestPublicMessageHidesInternals(t *testing.T) {
	err := newError(KindLedgerUnavailable, "submit", errors.New("dial tcp 10.0.0.1:4001: refused"))
	assert.Equal(t, "internal error", err.Public())
	assert.NotContains(t, err.Public(), "10.0.0.1")
	assert.Equal(t, "election is not active", ErrElectionNotActive.Public())
}
