package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shpitdev/crm-assist/internal/triage"
)

func newTriageCmd(a *app) *cobra.Command {
	var (
		mailbox        string
		output         string
		workers        int
		maxRetries     int
		rateLimitRPS   float64
		requestTimeout time.Duration
		failFast       bool
	)

	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Analyze every unread workspace message and write a CSV report",
		Example: `  crm-assist triage --workspace workspace.yaml --output triage.csv
  crm-assist triage --mailbox mb-1 --workers 2 --rate-limit-rps 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.cfg.Triage
			f := cmd.Flags()
			if f.Changed("workers") {
				opts.Workers = workers
			}
			if f.Changed("max-retries") {
				opts.MaxRetries = maxRetries
			}
			if f.Changed("rate-limit-rps") {
				opts.RateLimitRPS = rateLimitRPS
			}
			if f.Changed("request-timeout") {
				opts.RequestTimeout = requestTimeout
			}
			if f.Changed("fail-fast") {
				opts.FailFast = failFast
			}

			ws, err := a.workspace()
			if err != nil {
				return err
			}
			gw, err := a.gateway(cmd.Context(), nil)
			if err != nil {
				return err
			}

			items := triage.Items(ws, mailbox)
			runner := triage.NewRunner(gw, a.logger, triage.Options{
				Workers:        opts.Workers,
				MaxRetries:     opts.MaxRetries,
				RequestTimeout: opts.RequestTimeout,
				RateLimitRPS:   opts.RateLimitRPS,
				FailFast:       opts.FailFast,
			})
			results, err := runner.Run(cmd.Context(), items)
			if err != nil {
				return fmt.Errorf("triage: %w", err)
			}

			if output == "" || output == "-" {
				return triage.WriteCSV(a.out, results)
			}
			return writeFile(output, func(w io.Writer) error {
				return triage.WriteCSV(w, results)
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&mailbox, "mailbox", "", "Only triage this mailbox ID (default all)")
	f.StringVarP(&output, "output", "o", "", "Output CSV path (default stdout)")
	f.IntVar(&workers, "workers", 0, "Concurrent workers (env: TRIAGE_WORKERS)")
	f.IntVar(&maxRetries, "max-retries", 0, "Retries per message for transient failures (env: TRIAGE_MAX_RETRIES)")
	f.Float64Var(&rateLimitRPS, "rate-limit-rps", 0, "Global request rate limit, 0 disables (env: TRIAGE_RATE_LIMIT_RPS)")
	f.DurationVar(&requestTimeout, "request-timeout", 0, "Per-message timeout (env: TRIAGE_REQUEST_TIMEOUT)")
	f.BoolVar(&failFast, "fail-fast", false, "Stop at the first failed message (env: TRIAGE_FAIL_FAST)")
	return cmd
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
