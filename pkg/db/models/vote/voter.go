package vote

import (
	"errors"
	"fmt"
	"time"

	"github.com/algorand/go-algorand-sdk/v2/types"
)

// ErrInvalidAddress is returned when a voter's ledger address fails to decode.
var ErrInvalidAddress = errors.New("invalid ledger address")

// Account is the login identity a voter is linked to.
type Account struct {
	ID           int64
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

// Voter is a registered student. AccountID is nil until the voter is linked
// to a login account.
type Voter struct {
	ID            int64
	AccountID     *int64
	ControlNumber string
	IsEligible    bool
	LedgerAddress string
	HasVoted      bool
}

// Linked reports whether the voter has a login account.
func (v *Voter) Linked() bool { return v != nil && v.AccountID != nil }

// Validate checks the fields a store cannot enforce. An empty ledger address
// is allowed; anything else must be a well formed address.
func (v *Voter) Validate() error {
	if v.LedgerAddress == "" {
		return nil
	}
	if _, err := types.DecodeAddress(v.LedgerAddress); err != nil {
		return fmt.Errorf("voter %s: %w: %v", v.ControlNumber, ErrInvalidAddress, err)
	}
	return nil
}
