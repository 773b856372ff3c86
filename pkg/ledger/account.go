package ledger

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/algorand/go-algorand-sdk/v2/crypto"
	"github.com/algorand/go-algorand-sdk/v2/mnemonic"
	"github.com/algorand/go-algorand-sdk/v2/transaction"
	"github.com/algorand/go-algorand-sdk/v2/types"
)

// Signer holds a service account able to sign and pay for transactions.
type Signer struct {
	account crypto.Account
}

// SignerFromMnemonic loads an account from its 25-word recovery phrase.
func SignerFromMnemonic(phrase string) (*Signer, error) {
	sk, err := mnemonic.ToPrivateKey(phrase)
	if err != nil {
		return nil, fmt.Errorf("decode mnemonic: %w", err)
	}
	return SignerFromKey(sk)
}

func SignerFromKey(sk ed25519.PrivateKey) (*Signer, error) {
	acct, err := crypto.AccountFromPrivateKey(sk)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	return &Signer{account: acct}, nil
}

// GenerateSigner creates a throwaway account, mostly for tests.
func GenerateSigner() *Signer {
	return &Signer{account: crypto.GenerateAccount()}
}

func (s *Signer) Address() string { return s.account.Address.String() }

// SDKAddress is the decoded form of Address used when building transactions.
func (s *Signer) SDKAddress() types.Address { return s.account.Address }

func (s *Signer) Mnemonic() (string, error) { return mnemonic.FromPrivateKey(s.account.PrivateKey) }

// Sign returns the transaction id and the msgpack encoded signed transaction.
func (s *Signer) Sign(tx types.Transaction) (string, []byte, error) {
	return crypto.SignTransaction(s.account.PrivateKey, tx)
}

// ValidateAddress checks the checksum of an Algorand address.
func ValidateAddress(addr string) error {
	if _, err := types.DecodeAddress(addr); err != nil {
		return fmt.Errorf("invalid ledger address: %w", err)
	}
	return nil
}

// ToSDKParams converts node params into the SDK's suggested params with a
// 1000 round validity window.
func ToSDKParams(p TxParams) types.SuggestedParams {
	return types.SuggestedParams{
		Fee:              types.MicroAlgos(p.Fee),
		GenesisID:        p.GenesisID,
		GenesisHash:      p.GenesisHash,
		FirstRoundValid:  types.Round(p.LastRound),
		LastRoundValid:   types.Round(p.LastRound + 1000),
		ConsensusVersion: p.ConsensusVersion,
		MinFee:           p.MinFee,
	}
}

// NoteTransfer builds, signs and submits a zero-amount payment from the signer
// to itself carrying note. It returns the transaction id without waiting.
func NoteTransfer(ctx context.Context, node Node, s *Signer, note []byte) (string, error) {
	params, err := node.SuggestedParams(ctx)
	if err != nil {
		return "", err
	}
	tx, err := transaction.MakePaymentTxn(s.Address(), s.Address(), 0, note, "", ToSDKParams(params))
	if err != nil {
		return "", fmt.Errorf("build payment: %w", err)
	}
	return SignAndSubmit(ctx, node, s, tx)
}

// SignAndSubmit signs tx with s and hands it to the node.
func SignAndSubmit(ctx context.Context, node Node, s *Signer, tx types.Transaction) (string, error) {
	localID, stx, err := s.Sign(tx)
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}
	txid, err := node.SubmitRaw(ctx, stx)
	if err != nil {
		return "", err
	}
	if txid == "" {
		txid = localID
	}
	return txid, nil
}
