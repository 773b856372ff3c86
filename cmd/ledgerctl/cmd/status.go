package cmd

import (
	"github.com/cesa-network/cesavote/pkg/ledger"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the node round, application and sender balance",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		d := e.ledger.Deployer(e.cfg.Ledger, e.logger)
		report, err := d.Status(cmd.Context(), e.ledger.Sender)
		out := map[string]any{
			"mode":    e.cfg.Ledger.Mode,
			"report":  report,
			"algod":   ledger.Classify(err),
			"indexer": "not_configured",
		}
		if err != nil {
			out["error"] = err.Error()
		}
		if e.ledger.Indexer.Configured() {
			out["indexer"] = ledger.Classify(e.ledger.Indexer.Healthy(cmd.Context()))
		}
		return printJSON(cmd, out)
	},
}
