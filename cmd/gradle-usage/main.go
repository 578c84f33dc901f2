// Command gradle-usage reports the Gradle versions used by the projects below a set of directories.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/askiada/gradle-usage/internal/config"
	"github.com/askiada/gradle-usage/internal/report"
	"github.com/askiada/gradle-usage/internal/scan"
	"github.com/askiada/gradle-usage/internal/store"
	"github.com/askiada/gradle-usage/internal/version"
)

const reportsGroup = "reports"

// ErrNoHistory is returned by the history command when no database is configured.
var ErrNoHistory = errors.New("no history database configured, set --history-db")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// cobra already printed the error
		os.Exit(1)
	}
}

type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	cmd := &cobra.Command{
		Use:   "gradle-usage",
		Short: "Report the Gradle versions used by the projects below a set of directories.",
		Long: `gradle-usage walks directory trees looking for Gradle projects, works out the
Gradle version each of them uses and writes a report listing every project
followed by the number of projects using each version.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.init,
	}

	cmd.AddGroup(&cobra.Group{ID: reportsGroup, Title: "Reports:"})

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default is $HOME/.gradle-usage.yaml or ./.gradle-usage.yaml)")
	flags.String("log-level", "info", `log level ("debug", "info", "warn", "error")`)
	flags.String("history-db", "", "SQLite database recording every scan, disabled when empty")

	a.bind(flags.Lookup("log-level"), config.KeyLogLevel)
	a.bind(flags.Lookup("history-db"), config.KeyHistoryDB)

	cmd.AddCommand(newUsageCmd(a), newHistoryCmd(a))

	return cmd
}

func (a *app) bind(flag *pflag.Flag, key string) {
	cobra.CheckErr(a.v.BindPFlag(key, flag))
}

// init loads the configuration once the flags are parsed.
func (a *app) init(cmd *cobra.Command, _ []string) error {
	err := config.LoadDotEnv(".env")
	if err != nil {
		return err
	}

	err = config.ReadFile(a.v, a.cfgFile)
	if err != nil {
		return err
	}

	a.cfg, err = config.Load(a.v)
	if err != nil {
		return err
	}

	a.logger = newLogger(cmd.ErrOrStderr(), a.cfg.Level())

	if used := a.v.ConfigFileUsed(); used != "" {
		a.logger.Debug("using config file", "path", used)
	}

	return nil
}

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func newUsageCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:         "usage",
		Short:       "Produces a report of the Gradle versions used by projects.",
		GroupID:     reportsGroup,
		Annotations: map[string]string{"group": reportsGroup},
		Args:        cobra.NoArgs,
		RunE:        a.runUsage,
	}

	flags := cmd.Flags()
	flags.StringSlice("dir", nil, "A directory to scan for Gradle projects. Repeatable.")
	flags.StringSlice("exclude-dir", nil, "A directory to exclude from the scan for Gradle projects. Repeatable.")
	flags.Bool("follow-links", false, "Configure the scanner to follow symbolic links.")
	flags.String("resolver", version.WrapperKind, "How versions are resolved: "+strings.Join(version.Kinds(), ", "))
	flags.String("output-dir", config.DefaultOutputDir, "Directory the report is written to.")
	flags.String("format", report.TextFormat, "Report format: "+strings.Join(report.Formats(), ", "))
	flags.Int("concurrency", 0, "Projects resolved at once (default number of CPUs)")
	flags.Duration("gradlew-timeout", version.DefaultTimeout, "Timeout of a single gradlew invocation.")
	flags.Duration("timeout", config.DefaultTimeout, "Timeout of the whole scan.")
	flags.Int("cache-size", version.DefaultCacheSize, "Number of distributions whose version is cached by the gradlew resolver.")
	flags.String("pipeline-graph", "", "Write a Graphviz rendering of the scan pipeline to this file.")

	for flag, key := range map[string]string{
		"dir":             config.KeyPaths,
		"exclude-dir":     config.KeyExcludes,
		"follow-links":    config.KeyFollowLinks,
		"resolver":        config.KeyResolver,
		"output-dir":      config.KeyOutputDir,
		"format":          config.KeyFormat,
		"concurrency":     config.KeyConcurrency,
		"gradlew-timeout": config.KeyGradlewTimeout,
		"timeout":         config.KeyTimeout,
		"cache-size":      config.KeyCacheSize,
		"pipeline-graph":  config.KeyPipelineGraph,
	} {
		a.bind(flags.Lookup(flag), key)
	}

	return cmd
}

func (a *app) runUsage(cmd *cobra.Command, _ []string) error {
	cfg := a.cfg

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()

	resolver, err := version.New(cfg.Resolver, version.Options{
		Timeout:   cfg.GradlewTimeout,
		CacheSize: cfg.CacheSize,
		Logger:    a.logger,
	})
	if err != nil {
		return err
	}

	opts := scan.Options{
		Roots:       cfg.Paths,
		Excludes:    cfg.Excludes,
		FollowLinks: cfg.FollowLinks,
		Concurrency: cfg.Concurrency,
		Resolver:    resolver,
		GraphFile:   cfg.PipelineGraph,
		Logger:      a.logger,
	}

	if cfg.HistoryDB != "" {
		history, err := store.Open(ctx, cfg.HistoryDB)
		if err != nil {
			return err
		}
		defer history.Close()

		opts.Recorder = history
	}

	if len(opts.Roots) == 0 {
		a.logger.Warn("no directories to scan, set --dir")
	}

	start := time.Now()

	res, err := scan.Run(ctx, opts)
	if err != nil {
		return err
	}

	path, err := report.Write(cfg.OutputDir, cfg.Format, res.Report)
	if err != nil {
		return err
	}

	a.logger.Info("report written",
		"projects", len(res.Report.Projects),
		"versions", len(res.Report.Summary),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)

	_, err = fmt.Fprintln(cmd.OutOrStdout(), path)

	return err
}
