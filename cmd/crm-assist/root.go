package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shpitdev/crm-assist/internal/config"
	"github.com/shpitdev/crm-assist/internal/intake"
	"github.com/shpitdev/crm-assist/internal/logging"
	"github.com/shpitdev/crm-assist/internal/snapshot"
	"github.com/shpitdev/crm-assist/pkg/assist"
	"github.com/shpitdev/crm-assist/pkg/assist/gemini"
	"github.com/shpitdev/crm-assist/pkg/assist/prompt"
)

var errNoWorkspace = errors.New("no workspace file configured (use --workspace or CRM_ASSIST_WORKSPACE)")

type rootOptions struct {
	configPath string
	workspace  string
	logLevel   string
	compact    bool
}

// app is what every subcommand shares once flags and configuration are resolved.
type app struct {
	cfg     config.Config
	logger  *zap.Logger
	out     io.Writer
	compact bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	a := &app{}

	cmd := &cobra.Command{
		Use:   "crm-assist",
		Short: "AI assistance for a sales CRM: lead enrichment, inbox triage, call prep, outreach",
		Long: `crm-assist sends CRM records to Gemini and prints structured suggestions.

Nothing is written back to the CRM. Commands that take record IDs resolve them
against a read-only workspace snapshot (YAML).

Environment:
  GEMINI_API_KEY        Gemini API key (API_KEY is accepted as a fallback)
  GEMINI_MODEL          Model name (default gemini-3-flash-preview)
  GEMINI_BASE_URL       Optional base URL override (proxies/testing)
  CRM_ASSIST_CONFIG     YAML config file
  CRM_ASSIST_WORKSPACE  Workspace snapshot file`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadApp(*opts, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			*a = *loaded
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file (env: CRM_ASSIST_CONFIG)")
	pf.StringVar(&opts.workspace, "workspace", "", "Workspace snapshot file (env: CRM_ASSIST_WORKSPACE)")
	pf.StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn, error (env: LOG_LEVEL)")
	pf.BoolVar(&opts.compact, "json", false, "Print results as single-line JSON")

	cmd.AddCommand(
		newEnrichCmd(a),
		newAnalyzeCmd(a),
		newPrepareCallCmd(a),
		newOutreachCmd(a),
		newTriageCmd(a),
		newServeCmd(a),
		newVersionCmd(),
	)
	return cmd
}

func loadApp(opts rootOptions, out io.Writer) (*app, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, err
	}
	path := opts.configPath
	if path == "" {
		path = os.Getenv("CRM_ASSIST_CONFIG")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if opts.workspace != "" {
		cfg.Workspace = opts.workspace
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}

	logger, _, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, out: out, compact: opts.compact}, nil
}

func (a *app) gateway(ctx context.Context, observe assist.ObserveFunc) (*assist.Gateway, error) {
	completer, err := gemini.New(ctx, gemini.Config{
		APIKey:  a.cfg.Gemini.APIKey,
		Model:   a.cfg.Gemini.Model,
		BaseURL: a.cfg.Gemini.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return assist.New(assist.Config{
		Completer: assist.Trace(completer, a.logger),
		Prompts:   prompt.Builder{Language: a.cfg.Prompts.Language, Currency: a.cfg.Prompts.Currency},
		Logger:    a.logger,
		Observe:   observe,
	})
}

// workspace loads the configured snapshot; commands that resolve IDs need one.
func (a *app) workspace() (*snapshot.Workspace, error) {
	if a.cfg.Workspace == "" {
		return nil, errNoWorkspace
	}
	return snapshot.LoadFile(a.cfg.Workspace)
}

func (a *app) mapper() intake.Mapper {
	return intake.Mapper{OwnerID: a.cfg.Intake.OwnerID}
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	if !a.compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
