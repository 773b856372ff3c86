package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(lookup(nil))
	require.NoError(t, err)
	assert.Equal(t, "development", c.Environment)
	assert.Equal(t, LedgerOptional, c.Ledger.Mode)
	assert.Equal(t, 10*time.Second, c.Ledger.ConfirmTimeout)
	assert.Equal(t, time.Second, c.Ledger.ConfirmPoll)
	assert.Equal(t, 1000, c.Ledger.ScanLimit)
	assert.False(t, c.Ledger.Complete())
	assert.Equal(t, ":3001", c.Addr)
}

func TestLoadLedger(t *testing.T) {
	c, err := Load(lookup(map[string]string{
		"LEDGER_MODE":              "REQUIRED",
		"ALGOD_ADDRESS":            "http://localhost:4001",
		"ALGORAND_APP_ID":          "123",
		"ALGORAND_SENDER_MNEMONIC": "words",
		"CONFIRM_TIMEOUT":          "4s",
		"REGISTERED_ADDRESSES":     "A, B",
	}))
	require.NoError(t, err)
	assert.Equal(t, LedgerRequired, c.Ledger.Mode)
	assert.EqualValues(t, 123, c.Ledger.AppID)
	assert.Equal(t, 4*time.Second, c.Ledger.ConfirmTimeout)
	assert.Equal(t, []string{"A", "B"}, c.Eligibility.RegisteredAddresses)
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"required without ledger": {"LEDGER_MODE": "required"},
		"unknown mode":            {"LEDGER_MODE": "sometimes"},
		"simulated in production": {"LEDGER_MODE": "simulated", "ENVIRONMENT": "production", "SESSION_SECRET": "s"},
		"allow list in production": {
			"ENVIRONMENT": "production", "SESSION_SECRET": "s", "REGISTRATION_ALLOW_LIST": "true",
		},
		"default secret in production": {"ENVIRONMENT": "production"},
		"registration without node":    {"REQUIRE_LEDGER_REGISTRATION": "true"},
		"bad app id":                   {"ALGORAND_APP_ID": "abc"},
		"bad database":                 {"DATABASE_TYPE": "mysql"},
	}
	for name, env := range cases {
		_, err := Load(lookup(env))
		assert.ErrorIs(t, err, ErrInvalid, name)
	}
}

func TestAllowListAcceptedInDevelopment(t *testing.T) {
	c, err := Load(lookup(map[string]string{
		"REQUIRE_LEDGER_REGISTRATION": "true",
		"REGISTRATION_ALLOW_LIST":     "1",
	}))
	require.NoError(t, err)
	assert.True(t, c.Eligibility.UseAllowList)
	assert.False(t, c.Production())
}
