// Package cmd implements ledgerctl, the operator tool for the voting
// application on the ledger.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/cesa-network/cesavote/pkg/bootstrap"
	"github.com/cesa-network/cesavote/pkg/config"
	"github.com/cesa-network/cesavote/pkg/logging"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
	envFile string
	appID   uint64
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate the election application on the ledger",
	Long: `ledgerctl deploys the election application, inspects the node and
voter accounts, and retries ballots that never reached the ledger.

Settings are read from the environment, the --env-file and
$HOME/.ledgerctl.yaml, in that order of precedence.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ledgerctl.yaml)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	rootCmd.PersistentFlags().Uint64Var(&appID, "app-id", 0, "application id (default ALGORAND_APP_ID)")

	rootCmd.AddCommand(deployCmd, statusCmd, optInCmd, simulateVoteCmd, voterStatusCmd, checkAddressCmd, retryCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "Ignoring env file:", err)
		}
	}

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}

		// Search config in home directory with name ".ledgerctl" (without extension).
		viper.AddConfigPath(home)
		viper.SetConfigName(".ledgerctl")
	}

	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// env is what every command works with.
type env struct {
	cfg    config.Config
	ledger *bootstrap.Ledger
	logger *zap.Logger
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(viper.GetString)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, "console")
	if err != nil {
		return nil, err
	}
	l, err := bootstrap.NewLedger(cfg.Ledger)
	if err != nil {
		return nil, err
	}
	if appID != 0 {
		cfg.Ledger.AppID = appID
	}
	return &env{cfg: cfg, ledger: l, logger: logger}, nil
}

// requireAppID returns the application id or an error naming how to set it.
func (e *env) requireAppID() (uint64, error) {
	if e.cfg.Ledger.AppID == 0 {
		return 0, errors.New("no application id: pass --app-id or set ALGORAND_APP_ID")
	}
	return e.cfg.Ledger.AppID, nil
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return err
}
