// Package cli wires the accountant commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/congo-pay/accountant/internal/batch"
	"github.com/congo-pay/accountant/internal/config"
	"github.com/congo-pay/accountant/internal/infra"
	"github.com/congo-pay/accountant/internal/logging"
	"github.com/congo-pay/accountant/internal/report"
)

type options struct {
	configPath string
	logLevel   string
	logFile    string
	ledger     string
	workers    int
	format     string
	output     string
}

// NewRootCommand builds the command tree. Reports go to the command's output
// writer, so tests can capture them with SetOut.
func NewRootCommand() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:   "accountant [flags] <transactions.csv>",
		Short: "Apply a stream of client transactions and print the resulting accounts",
		Long: `accountant reads a CSV of deposits, withdrawals, disputes, resolves and
chargebacks, applies them to per-client accounts and prints one line per
client with its available, held and total funds and whether it is locked.

Example Usage:
  accountant transactions.csv > accounts.csv
  accountant --workers 8 --ledger redis transactions.csv
  accountant --format xlsx --output accounts.xlsx transactions.csv
  accountant serve`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(cmd, opts, args[0])
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to a YAML configuration file")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFile, "log-file", "", "append logs to this file instead of stderr")
	flags.StringVar(&opts.ledger, "ledger", "", "transaction ledger backend (memory, redis, postgres)")
	flags.IntVar(&opts.workers, "workers", 0, "number of client shards processed in parallel")

	root.Flags().StringVar(&opts.format, "format", string(report.FormatCSV), "report format (csv, xlsx)")
	root.Flags().StringVarP(&opts.output, "output", "o", "", "write the report to this file instead of stdout")

	root.AddCommand(newServeCommand(opts), newVersionCommand())
	return root
}

// Execute runs the command tree against os.Args and returns the exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// loadConfig layers changed flags over file and environment configuration.
func loadConfig(cmd *cobra.Command, opts *options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = opts.logFile
	}
	if flags.Changed("ledger") {
		cfg.LedgerBackend = opts.ledger
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.workers
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func runFile(cmd *cobra.Command, opts *options, path string) error {
	cfg, err := loadConfig(cmd, opts)
	if err != nil {
		return err
	}
	format, err := report.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	if format == report.FormatXLSX && opts.output == "" {
		return fmt.Errorf("--format xlsx requires --output")
	}

	logger, closeLog, err := logging.Open(cfg.LogLevel, cfg.LogFormat, cfg.LogFile)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	in, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	conns, err := infra.Connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer conns.Close()

	runner := batch.NewRunner(batch.Options{
		Backend:  cfg.LedgerBackend,
		Backends: conns.Backends(cfg.LedgerTTL),
		Workers:  cfg.Workers,
		Logger:   logger,
	})
	res, err := runner.Run(ctx, in)
	if err != nil {
		logger.Error("run failed", "file", path, "run_id", res.RunID.String(), "error", err)
		return err
	}

	if err := writeReport(cmd.OutOrStdout(), opts.output, format, res); err != nil {
		return err
	}
	logger.Info("report written", "file", path, "run_id", res.RunID.String(),
		"accounts", len(res.Accounts), "elapsed", res.Summary.Elapsed)
	return nil
}

func writeReport(stdout io.Writer, output string, format report.Format, res batch.Result) error {
	if output == "" {
		return report.Write(stdout, format, res.Accounts)
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := report.Write(f, format, res.Accounts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
