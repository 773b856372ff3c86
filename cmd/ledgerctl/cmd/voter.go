package cmd

import (
	"errors"

	"github.com/cesa-network/cesavote/pkg/ballot"
	"github.com/cesa-network/cesavote/pkg/ledger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	voterMnemonic string
	candidateID   uint64
)

// voterSigner reads the voter account from --mnemonic or VOTER_MNEMONIC.
func voterSigner() (*ledger.Signer, error) {
	phrase := voterMnemonic
	if phrase == "" {
		phrase = viper.GetString("VOTER_MNEMONIC")
	}
	if phrase == "" {
		return nil, errors.New("voter account required: pass --mnemonic or set VOTER_MNEMONIC")
	}
	return ledger.SignerFromMnemonic(phrase)
}

var optInCmd = &cobra.Command{
	Use:   "opt-in",
	Short: "Register a voter account with the application",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		id, err := e.requireAppID()
		if err != nil {
			return err
		}
		voter, err := voterSigner()
		if err != nil {
			return err
		}
		txid, err := e.ledger.Deployer(e.cfg.Ledger, e.logger).OptIn(cmd.Context(), voter, id)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"address": voter.Address(), "app_id": id, "txid": txid})
	},
}

var simulateVoteCmd = &cobra.Command{
	Use:   "simulate-vote",
	Short: "Cast an application vote call from a voter account",
	Long: `Sends the application "vote" call with the candidate id. Ballots of
the service never use this path; it exercises the application itself.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		id, err := e.requireAppID()
		if err != nil {
			return err
		}
		voter, err := voterSigner()
		if err != nil {
			return err
		}
		if candidateID == 0 {
			return errors.New("--candidate is required")
		}
		txid, err := e.ledger.Deployer(e.cfg.Ledger, e.logger).SimulateVote(cmd.Context(), voter, id, candidateID)
		if err != nil {
			return err
		}
		return printJSON(cmd, map[string]any{"address": voter.Address(), "candidate_id": candidateID, "txid": txid})
	},
}

var voterStatusCmd = &cobra.Command{
	Use:   "voter-status <address>",
	Short: "Show a voter account's local state in the application",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		id, err := e.requireAppID()
		if err != nil {
			return err
		}
		state, err := e.ledger.Deployer(e.cfg.Ledger, e.logger).VoterStatus(cmd.Context(), args[0], id)
		if err != nil {
			return err
		}
		return printJSON(cmd, state)
	},
}

var checkAddressCmd = &cobra.Command{
	Use:   "check-address <address>",
	Short: "Validate an address and report whether it opted in",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := args[0]
		if err := ledger.ValidateAddress(address); err != nil {
			return printJSON(cmd, map[string]any{"address": address, "valid": false, "error": err.Error()})
		}
		e, err := loadEnv()
		if err != nil {
			return err
		}
		out := map[string]any{"address": address, "valid": true}
		if e.cfg.Ledger.AppID == 0 || !e.ledger.Node.Configured() {
			return printJSON(cmd, out)
		}
		registered, err := ballot.NewLedgerRegistrationChecker(e.ledger.Node, e.cfg.Ledger.AppID).IsRegistered(cmd.Context(), address)
		if err != nil {
			out["error"] = err.Error()
		} else {
			out["opted_in"] = registered
		}
		out["app_id"] = e.cfg.Ledger.AppID
		return printJSON(cmd, out)
	},
}

func init() {
	for _, c := range []*cobra.Command{optInCmd, simulateVoteCmd} {
		c.Flags().StringVar(&voterMnemonic, "mnemonic", "", "voter account mnemonic (default VOTER_MNEMONIC)")
	}
	simulateVoteCmd.Flags().Uint64Var(&candidateID, "candidate", 0, "candidate id")
}
