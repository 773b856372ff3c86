package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/cesa-network/cesavote/pkg/deploy"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const appIDKey = "ALGORAND_APP_ID"

var deployFlags struct {
	approval  string
	clear     string
	regBegin  string
	regEnd    string
	voteBegin string
	voteEnd   string
	writeEnv  bool
}

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Compile and create the election application",
	Long: `Compiles the approval and clear programs on the node, creates the
application with the registration and voting windows, and waits for
confirmation. The new id is written to the env file unless --write-env=false.

Windows are RFC 3339 timestamps. Missing ones default to one week of
registration starting now, followed by one week of voting.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := loadEnv()
		if err != nil {
			return err
		}
		windows, err := parseWindows(time.Now().UTC())
		if err != nil {
			return err
		}
		approval, err := os.ReadFile(deployFlags.approval)
		if err != nil {
			return fmt.Errorf("read approval program: %w", err)
		}
		clearProg, err := os.ReadFile(deployFlags.clear)
		if err != nil {
			return fmt.Errorf("read clear program: %w", err)
		}

		d := e.ledger.Deployer(e.cfg.Ledger, e.logger)
		id, err := d.Deploy(cmd.Context(), deploy.Request{
			ApprovalSource: string(approval),
			ClearSource:    string(clearProg),
			Windows:        windows,
		})
		if err != nil {
			return err
		}
		if deployFlags.writeEnv {
			if err := persistAppID(envFile, id); err != nil {
				return err
			}
			e.logger.Info("Application id saved", zap.String("file", envFile), zap.Uint64("app_id", id))
		}
		return printJSON(cmd, map[string]any{"deployment": d.State(), "windows": windows})
	},
}

func init() {
	f := deployCmd.Flags()
	f.StringVar(&deployFlags.approval, "approval", "contracts/approval.teal", "approval program source")
	f.StringVar(&deployFlags.clear, "clear", "contracts/clear.teal", "clear state program source")
	f.StringVar(&deployFlags.regBegin, "reg-begin", "", "registration opens (RFC 3339)")
	f.StringVar(&deployFlags.regEnd, "reg-end", "", "registration closes (RFC 3339)")
	f.StringVar(&deployFlags.voteBegin, "vote-begin", "", "voting opens (RFC 3339)")
	f.StringVar(&deployFlags.voteEnd, "vote-end", "", "voting closes (RFC 3339)")
	f.BoolVar(&deployFlags.writeEnv, "write-env", true, "save the new application id to the env file")
}

// parseWindows applies the window flags over the defaults for now.
func parseWindows(now time.Time) (deploy.Windows, error) {
	w := deploy.DefaultWindows(now)
	fields := []struct {
		flag string
		raw  string
		dst  *time.Time
	}{
		{"reg-begin", deployFlags.regBegin, &w.RegistrationBegin},
		{"reg-end", deployFlags.regEnd, &w.RegistrationEnd},
		{"vote-begin", deployFlags.voteBegin, &w.VotingBegin},
		{"vote-end", deployFlags.voteEnd, &w.VotingEnd},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, f.raw)
		if err != nil {
			return w, fmt.Errorf("--%s: %w", f.flag, err)
		}
		*f.dst = t
	}
	return w, w.Validate()
}

// persistAppID sets ALGORAND_APP_ID in the dotenv file at path, keeping the
// other entries.
func persistAppID(path string, id uint64) error {
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		values = map[string]string{}
	} else if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	values[appIDKey] = strconv.FormatUint(id, 10)
	if err := godotenv.Write(values, path); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
