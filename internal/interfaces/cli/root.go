// Package cli implements the chargerepo command tree.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/turtacn/charge-repository/internal/application/corpus"
	"github.com/turtacn/charge-repository/internal/config"
	"github.com/turtacn/charge-repository/internal/domain/molecule"
	rediscache "github.com/turtacn/charge-repository/internal/infrastructure/database/redis"
	"github.com/turtacn/charge-repository/internal/infrastructure/dreadnaut"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/charge-repository/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/charge-repository/pkg/errors"
)

// Build-time variables injected via ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// RootOptions holds global CLI flags.
type RootOptions struct {
	ConfigPath   string
	LogLevel     string
	Solver       string
	OutputFormat string
}

// CLIContext carries initialized dependencies through the command tree.
type CLIContext struct {
	ConfigPath   string
	Config       *config.Config
	Logger       logging.Logger
	Metrics      *prometheus.RepoMetrics
	OutputFormat string
}

// NewRootCommand creates the root command with its global flags and every
// subcommand.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "chargerepo",
		Short: "Fragment-keyed partial charge repository",
		Long: "chargerepo builds and maintains repositories of atomic partial charges keyed by\n" +
			"canonical fingerprints of atom neighborhoods, computed with nauty's dreadnaut.",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, GitCommit, BuildDate),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return persistentPreRun(cmd, opts)
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&opts.ConfigPath, "config", "c", "", "config file path (default: CHARGE_* environment only)")
	pf.StringVar(&opts.LogLevel, "log-level", "", "log level (debug, info, warn, error); overrides the config file")
	pf.StringVar(&opts.Solver, "solver", "", "dreadnaut executable; overrides solver.executable")
	pf.StringVarP(&opts.OutputFormat, "output", "o", "text", "output format (text, json)")

	cmd.AddCommand(
		newBuildCmd(),
		newAddCmd(),
		newSubtractCmd(),
		newInspectCmd(),
		newCanonizeCmd(),
		newConvertCmd(),
		newWatchCmd(),
		newPushCmd(),
		newPullCmd(),
	)
	return cmd
}

// persistentPreRun loads config, builds the logger and metrics, then stores
// the CLIContext on the command.
func persistentPreRun(cmd *cobra.Command, opts *RootOptions) error {
	cfg, err := config.LoadOrEnv(opts.ConfigPath)
	if err != nil {
		return errors.Wrap(err, errors.CodeInvalidConfig, "load configuration")
	}
	if opts.Solver != "" {
		cfg.Solver.Executable = opts.Solver
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}

	logger, err := logging.NewLogger(cfg.Log)
	if err != nil {
		return fmt.Errorf("logger initialization failed: %w", err)
	}
	logging.SetDefault(logger)

	metrics, err := initMetrics(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}

	cliCtx := &CLIContext{
		ConfigPath:   opts.ConfigPath,
		Config:       cfg,
		Logger:       logger,
		Metrics:      metrics,
		OutputFormat: strings.ToLower(opts.OutputFormat),
	}
	cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, cliCtx))
	return nil
}

// initMetrics starts the metrics endpoint when enabled.  The endpoint stops
// with ctx.
func initMetrics(ctx context.Context, cfg *config.Config, logger logging.Logger) (*prometheus.RepoMetrics, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{Namespace: cfg.Metrics.Namespace}, logger)
	if err != nil {
		return nil, err
	}
	if _, err := prometheus.Serve(ctx, collector, cfg.Metrics.Addr, cfg.Metrics.Path, logger); err != nil {
		return nil, err
	}
	return prometheus.NewRepoMetrics(collector), nil
}

// GetCLIContext extracts CLIContext from a command's context.
func GetCLIContext(cmd *cobra.Command) (*CLIContext, error) {
	ctx := cmd.Context()
	if ctx == nil {
		return nil, errors.Internal("command context is nil")
	}
	cliCtx, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok || cliCtx == nil {
		return nil, errors.Internal("CLIContext not found in command context")
	}
	return cliCtx, nil
}

// Execute runs the command tree under ctx.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		PrintError(rootCmd, err)
		return err
	}
	return nil
}

// ExitCode maps an error returned by Execute to a process exit status:
// 2 for configuration problems, 1 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if errors.ModuleForCode(errors.GetCode(err)) == "CONFIG" {
		return 2
	}
	return 1
}

// openCache connects the shared fingerprint cache when it is enabled.  The
// returned close function is never nil.
func (c *CLIContext) openCache() (molecule.FingerprintCache, func() error, error) {
	rcfg := c.Config.Cache.Redis
	if !rcfg.Enabled {
		return nil, func() error { return nil }, nil
	}
	rdb, err := rediscache.NewClient(rcfg, c.Logger)
	if err != nil {
		return nil, nil, err
	}
	opts := append(rediscache.OptionsFrom(rcfg), rediscache.WithMetrics(c.Metrics))
	return rediscache.NewFingerprintCache(rdb, c.Logger, opts...), rdb.Close, nil
}

// canonizers returns the factory that gives each worker its own solver.
func (c *CLIContext) canonizers(cache molecule.FingerprintCache) corpus.CanonizerFactory {
	return corpus.SolverCanonizers(dreadnaut.ConfigFrom(c.Config.Solver), cache, c.Logger, c.Metrics)
}

// withCanonizer runs fn with one solver-backed canonizer and releases it
// afterwards.
func (c *CLIContext) withCanonizer(ctx context.Context, fn func(molecule.Canonizer) error) error {
	cache, closeCache, err := c.openCache()
	if err != nil {
		return err
	}
	defer closeCache()

	canon, release, err := c.canonizers(cache)(ctx, 0)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			c.Logger.Warn("closing solver failed", logging.Err(err))
		}
	}()
	return fn(canon)
}

// PrintResult writes data as JSON with -o json and through text otherwise.
func PrintResult(cmd *cobra.Command, data interface{}, text func() string) error {
	cliCtx, err := GetCLIContext(cmd)
	if err == nil && cliCtx.OutputFormat == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), text())
	return err
}

// PrintError writes a formatted error message to stderr.
func PrintError(cmd *cobra.Command, err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
}

// PrintSuccess writes a formatted success message to stdout.
func PrintSuccess(cmd *cobra.Command, msg string) {
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %s\n", msg)
}

// FormatTable renders headers and rows as an aligned ASCII table.
func FormatTable(headers []string, rows [][]string) string {
	if len(headers) == 0 {
		return ""
	}

	colWidths := make([]int, len(headers))
	for i, h := range headers {
		colWidths[i] = len(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(colWidths); i++ {
			if len(row[i]) > colWidths[i] {
				colWidths[i] = len(row[i])
			}
		}
	}

	var sb strings.Builder
	writeRow := func(cells []string) {
		for i := range headers {
			if i > 0 {
				sb.WriteString("  ")
			}
			val := ""
			if i < len(cells) {
				val = cells[i]
			}
			sb.WriteString(padRight(val, colWidths[i]))
		}
		sb.WriteString("\n")
	}

	writeRow(headers)
	sep := make([]string, len(headers))
	for i, w := range colWidths {
		sep[i] = strings.Repeat("-", w)
	}
	writeRow(sep)
	for _, row := range rows {
		writeRow(row)
	}
	return sb.String()
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}
