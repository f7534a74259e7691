package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/awardtally/pkg/logger"
)

// Default flag values.
const (
	defaultFacts         = 10000
	defaultNominees      = 25
	defaultVoteRatio     = 0.7
	defaultDuplicateRate = 0.05
	defaultRetractRate   = 0.02
	defaultWorkersPerCPU = 2
	defaultTimeout       = 30 * time.Second
	defaultRunTimeout    = 10 * time.Minute
)

// NewCommand builds the simulate command.
func NewCommand() *cobra.Command {
	cfg := &Config{}
	var (
		logFile    string
		runTimeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Drive a running award tally service and check its consistency",
		Long: `simulate registers nominees in one open subcategory, submits a mix of
AGC-backed votes, nominations and replayed transactions, retracts a share of
the accepted facts, and then checks that:

  - the tally is ranked by non-increasing weighted score
  - no transaction backed more than one accepted fact
  - every nominee's combined count moved by exactly its accepted facts

The service should run with the memory ledger and auto-funding enabled.`,
		Example: `  simulate --subcategory best-artist
  simulate --url http://localhost:9080 --subcategory best-artist --facts 50000 --workers 32
  simulate --subcategory best-artist --roles judge,bot,boa --seed 42 --output facts.json`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := setupLogging(logFile, cfg.Verbose); err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx, cancel := context.WithTimeout(cmd.Context(), runTimeout)
			defer cancel()
			_, err := Run(ctx, cfg)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&cfg.BaseURL, "url", "http://localhost:9080", "base URL of the service")
	f.StringVar(&cfg.SubcategoryID, "subcategory", "", "open subcategory to target (required)")
	f.IntVar(&cfg.Nominees, "nominees", defaultNominees, "nominees to register")
	f.StringVar(&cfg.NomineePrefix, "prefix", "sim", "prefix of generated nominee ids")
	f.IntVar(&cfg.Facts, "facts", defaultFacts, "facts to generate")
	f.Float64Var(&cfg.VoteRatio, "vote-ratio", defaultVoteRatio, "share of facts that are votes")
	f.Float64Var(&cfg.DuplicateRate, "duplicate-rate", defaultDuplicateRate, "share of facts that replay a used txn id")
	f.Float64Var(&cfg.RetractRate, "retract-rate", defaultRetractRate, "share of accepted facts to retract")
	f.StringSliceVar(&cfg.Roles, "roles", []string{"public", "judge"}, "actor roles to draw from")
	f.IntVar(&cfg.Workers, "workers", runtime.NumCPU()*defaultWorkersPerCPU, "concurrent submitters")
	f.DurationVar(&cfg.Timeout, "timeout", defaultTimeout, "HTTP request timeout")
	f.Uint64Var(&cfg.Seed, "seed", 0, "generator seed; 0 picks one at random")
	f.StringVar(&cfg.OutputFile, "output", "", "write the generated facts to this JSON file")
	f.BoolVarP(&cfg.Verbose, "verbose", "v", false, "log progress and the top of the tally")
	f.StringVar(&logFile, "log", "", "also append logs to this file")
	f.DurationVar(&runTimeout, "run-timeout", defaultRunTimeout, "deadline for the whole run")
	_ = cmd.MarkFlagRequired("subcategory")

	return cmd
}

// setupLogging sends logs to stdout and, when logFile is set, to that file.
func setupLogging(logFile string, verbose bool) error {
	var out io.Writer = os.Stdout
	if logFile != "" {
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, filePermission)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, file)
	}
	if err := logger.Init(logger.WithOutput(out)); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	if verbose {
		return logger.SetLevelString("debug")
	}
	return nil
}
