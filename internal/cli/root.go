// Package cli implements the gristmigrate command line.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"gristmigrate/internal/config"
	"gristmigrate/internal/etl"
	"gristmigrate/internal/grist"
	"gristmigrate/internal/logging"
	"gristmigrate/internal/secret"
	"gristmigrate/internal/service"
	"gristmigrate/internal/storage"

	_ "gristmigrate/internal/simplifions" // registers the simplifions plan
)

var (
	version = "dev"
	commit  = "none"
)

// staleRunAge is how long a run may stay "running" before it is taken for
// the leftover of a crashed process.
const staleRunAge = 6 * time.Hour

// OpenFunc connects to the source and target documents of cfg.
type OpenFunc func(cfg *config.Config) (source, target etl.Document, err error)

// Env holds what commands take from the outside world. Tests replace it.
type Env struct {
	Open    OpenFunc
	Secrets secret.Store
	// DotEnv is loaded before configuration when it exists.
	DotEnv string
}

// DefaultEnv talks to the configured Grist server.
func DefaultEnv() *Env {
	return &Env{Open: openGrist, Secrets: secret.Default(), DotEnv: ".env"}
}

func openGrist(cfg *config.Config) (etl.Document, etl.Document, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	opts := []grist.Option{
		grist.WithTimeout(cfg.Timeout),
		grist.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	}
	source := grist.NewClient(cfg.APIURL, cfg.APIKey, cfg.SourceDoc, opts...)
	target := grist.NewClient(cfg.APIURL, cfg.APIKey, cfg.TargetDoc, opts...)
	return source, target, nil
}

// rootOptions are the global flags, resolved into cfg before each command.
type rootOptions struct {
	env        *Env
	configPath string
	output     string
	logLevel   string
	logFormat  string
	apiURL     string
	source     string
	target     string
	plan       string
	historyDB  string
	timeout    time.Duration
	rateLimit  float64

	cfg *config.Config
	log zerolog.Logger
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	rootCmd := NewRootCommand(DefaultEnv())
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return GetExitCode(err)
	}
	return ExitSuccess
}

// NewRootCommand creates the root command.
func NewRootCommand(env *Env) *cobra.Command {
	opts := &rootOptions{env: env}

	cmd := &cobra.Command{
		Use:   "gristmigrate",
		Short: "Migrate Grist documents",
		Long: `Copy records from a source Grist document into a target Grist document,
resolving references by name and rewriting target tables in dependency order.

Configuration is read from gristmigrate.yaml, then the environment
(SECRET_GRIST_API_KEY, SOURCE_GRIST_ID, TARGET_GRIST_ID, ...), then flags.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.resolve(cmd)
		},
	}

	f := cmd.PersistentFlags()
	f.StringVarP(&opts.configPath, "config", "c", "", "YAML config file (default gristmigrate.yaml when present)")
	f.StringVarP(&opts.output, "output", "o", "table", "Output format (table, json)")
	f.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	f.StringVar(&opts.logFormat, "log-format", "", "Log format (console, json)")
	f.StringVar(&opts.apiURL, "api-url", "", "Grist API base URL")
	f.StringVar(&opts.source, "source", "", "Source document id")
	f.StringVar(&opts.target, "target", "", "Target document id")
	f.StringVar(&opts.plan, "plan", "", "Migration plan")
	f.StringVar(&opts.historyDB, "history-db", "", "SQLite file recording runs (empty disables history)")
	f.DurationVar(&opts.timeout, "timeout", 0, "Per-request HTTP timeout (0: none)")
	f.Float64Var(&opts.rateLimit, "rate-limit", 0, "Maximum Grist requests per second (0: unlimited)")

	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newPreviewCmd(opts))
	cmd.AddCommand(newStepsCmd(opts))
	cmd.AddCommand(newTablesCmd(opts))
	cmd.AddCommand(newColumnsCmd(opts))
	cmd.AddCommand(newHistoryCmd(opts))
	cmd.AddCommand(newScheduleCmd(opts))
	cmd.AddCommand(newWatchCmd(opts))
	cmd.AddCommand(newMCPCmd(opts))
	cmd.AddCommand(newApprovalsCmd(opts))
	cmd.AddCommand(newLoginCmd(opts))
	cmd.AddCommand(newConfigCmd(opts))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// resolve applies precedence: flag > env > file > default.
func (o *rootOptions) resolve(cmd *cobra.Command) error {
	if err := validateOutputFormat(o.output); err != nil {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	}
	if o.env.DotEnv != "" {
		if err := config.LoadDotEnv(o.env.DotEnv); err != nil && !errors.Is(err, os.ErrNotExist) {
			return WrapExitError(ExitCommandError, "load .env", err)
		}
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "load config", err)
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if flags.Changed(name) {
			*dst = v
		}
	}
	set("log-level", &cfg.LogLevel, o.logLevel)
	set("log-format", &cfg.LogFormat, o.logFormat)
	set("api-url", &cfg.APIURL, o.apiURL)
	set("source", &cfg.SourceDoc, o.source)
	set("target", &cfg.TargetDoc, o.target)
	set("plan", &cfg.Plan, o.plan)
	set("history-db", &cfg.HistoryDB, o.historyDB)
	if flags.Changed("timeout") {
		cfg.Timeout = o.timeout
	}
	if flags.Changed("rate-limit") {
		cfg.RateLimitRPS = o.rateLimit
	}

	if err := cfg.ResolveAPIKey(o.env.Secrets); err != nil {
		// The keychain is a fallback; a missing entry only matters once a
		// document is opened, where Validate reports it.
		cfg.Warnings = append(cfg.Warnings, err.Error())
	}

	// Progress goes to stdout unless stdout carries JSON or the MCP transport.
	logOut := cmd.OutOrStdout()
	if o.output == "json" || cmd.Name() == "mcp" {
		logOut = cmd.ErrOrStderr()
	}
	o.cfg = cfg
	o.log = logging.New().To(logOut).Level(cfg.LogLevel).Format(cfg.LogFormat).Make()
	for _, w := range cfg.Warnings {
		o.log.Warn().Msg(w)
	}
	return nil
}

// ── Shared wiring ──────────────────────────────────────────

func (o *rootOptions) loadPlan() (*etl.Plan, error) {
	plan, err := etl.GetPlan(o.cfg.Plan)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load plan", fmt.Errorf("%w (available: %v)", err, etl.ListPlans()))
	}
	return plan, nil
}

func (o *rootOptions) openDocuments() (etl.Document, etl.Document, error) {
	source, target, err := o.env.Open(o.cfg)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open documents", err)
	}
	return source, target, nil
}

// openHistory opens the run history database, or returns nil when none is configured.
func (o *rootOptions) openHistory() (*storage.DB, error) {
	if o.cfg.HistoryDB == "" {
		return nil, nil
	}
	db, err := storage.New(o.cfg.HistoryDB)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open history", err)
	}
	return db, nil
}

// requireHistory is openHistory for commands that make no sense without it.
func (o *rootOptions) requireHistory() (*storage.DB, error) {
	db, err := o.openHistory()
	if err == nil && db == nil {
		err = WrapExitError(ExitCommandError, "no history database",
			fmt.Errorf("set --history-db or %s", config.EnvHistoryDB))
	}
	return db, err
}

// newService wires a MigrationService. The returned close func releases the
// history database.
func (o *rootOptions) newService() (*service.MigrationService, func(), error) {
	plan, err := o.loadPlan()
	if err != nil {
		return nil, nil, err
	}
	source, target, err := o.openDocuments()
	if err != nil {
		return nil, nil, err
	}
	db, err := o.openHistory()
	if err != nil {
		return nil, nil, err
	}

	svcOpts := service.Options{
		Plan:      plan,
		Source:    source,
		Target:    target,
		SourceDoc: o.cfg.SourceDoc,
		TargetDoc: o.cfg.TargetDoc,
		Log:       o.log,
	}
	closeFn := func() {}
	if db != nil {
		history := storage.NewRunStore(db)
		if n, err := history.MarkInterrupted(time.Now().Add(-staleRunAge)); err == nil && n > 0 {
			o.log.Warn().Int64("runs", n).Msg("marked unfinished runs as interrupted")
		}
		svcOpts.History = history
		closeFn = func() { db.Close() }
	}
	svcOpts.Emitter = service.LogEmitter{Log: o.log}
	return service.NewMigrationService(svcOpts), closeFn, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
