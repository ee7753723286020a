// Package cli implements the reimburse command line.
package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/xraph/reimburse"
	audithook "github.com/xraph/reimburse/audit_hook"
	"github.com/xraph/reimburse/internal/config"
	"github.com/xraph/reimburse/observability"
	"github.com/xraph/reimburse/payout"
	"github.com/xraph/reimburse/store"
	"github.com/xraph/reimburse/store/memory"
	"github.com/xraph/reimburse/store/mongo"
	"github.com/xraph/reimburse/store/postgres"
	"github.com/xraph/reimburse/store/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "reimburse",
	Short: "Health insurance reimbursement ledger",
	Long: `reimburse runs a pooled health insurance ledger: members buy coverage,
file claims, verifiers approve or reject them, and approved claims are paid
out of the pool.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a TOML or YAML config file")
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// openStore opens the backend named by the store config. The caller closes
// it, directly or through Ledger.Stop.
func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN)
	case "postgres":
		return postgres.Open(ctx, cfg.DSN)
	case "mongo":
		return mongo.Open(cfg.DSN, cfg.Database)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// buildLedger wires the engine with its audit trail, metrics and the
// in-process payout wallet.
func buildLedger(cfg *config.Config, s store.Store, log *slog.Logger, reg prometheus.Registerer) (*reimburse.Ledger, error) {
	owner, err := cfg.OwnerAccount()
	if err != nil {
		return nil, err
	}
	fee, err := cfg.ProcessingFee()
	if err != nil {
		return nil, err
	}
	verifiers, err := cfg.VerifierAccounts()
	if err != nil {
		return nil, err
	}

	opts := []reimburse.Option{
		reimburse.WithLogger(log),
		reimburse.WithOwner(owner),
		reimburse.WithClaimProcessingFee(fee),
		reimburse.WithVerifiers(verifiers...),
		reimburse.WithTransferer(payout.NewWallet()),
		reimburse.WithPlugin(audithook.New(audithook.NewSlogRecorder(log), audithook.WithLogger(log))),
	}
	if cfg.Metrics.Enabled {
		factory := observability.NewPrometheusFactory(reg)
		opts = append(opts, reimburse.WithPlugin(observability.NewMetricsExtension(factory)))
	}

	return reimburse.New(s, opts...), nil
}
