package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/evanschultz/kanflow/internal/adapters/storage/sqlite"
	"github.com/evanschultz/kanflow/internal/app"
	"github.com/evanschultz/kanflow/internal/config"
	"github.com/evanschultz/kanflow/internal/platform"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// version stores a package-level helper value.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(newCLI(os.Stdout, os.Stderr))
	if err := fang.Execute(ctx, root, fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}

// run runs the requested command flow without fang styling.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	root := newRootCommand(newCLI(stdout, stderr))
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// cli holds persistent flag state shared by every subcommand.
type cli struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time

	configPath string
	dbPath     string
	appName    string
	devMode    bool
	quiet      bool
}

// newCLI constructs CLI state with environment-derived defaults.
func newCLI(stdout, stderr io.Writer) *cli {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	c := &cli{
		stdout:  stdout,
		stderr:  stderr,
		now:     time.Now,
		appName: platform.DefaultAppName,
		devMode: version == "dev",
	}
	if envDev, ok := parseBoolEnv("KANFLOW_DEV_MODE"); ok {
		c.devMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("KANFLOW_APP_NAME")); envApp != "" {
		c.appName = envApp
	}
	return c
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "kanflow",
		Short:         "Work-item flow metrics from issue changelogs",
		Long:          "kanflow imports work-item changelogs and derives cycle time, daily work in progress, blocked/stalled state and data-quality findings.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.stdout)
	root.SetErr(c.stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "path to config TOML")
	flags.StringVar(&c.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&c.appName, "app", c.appName, "application name for config/data path resolution")
	flags.BoolVar(&c.devMode, "dev", c.devMode, "use dev mode paths (<app>-dev)")
	flags.BoolVar(&c.quiet, "quiet", false, "suppress console logging")

	root.AddCommand(
		c.pathsCmd(),
		c.importCmd(),
		c.exportCmd(),
		c.metricsCmd(),
		c.dailyCmd(),
		c.stateCmd(),
		c.qualityCmd(),
		c.reportCmd(),
		c.importsCmd(),
		c.serveCmd(),
	)
	return root
}

// runtimeEnv bundles the resources opened for one command.
type runtimeEnv struct {
	cfg    config.Config
	paths  platform.Paths
	logger *runtimeLogger
	repo   *sqlite.Repository
	svc    *app.Service
}

// Close releases the repository and log sinks.
func (r *runtimeEnv) Close() {
	if r == nil {
		return
	}
	if r.repo != nil {
		if err := r.repo.Close(); err != nil {
			r.logger.Warn("sqlite close failed", "db_path", r.cfg.Database.Path, "err", err)
		}
	}
	_ = r.logger.Close()
}

// resolvePaths resolves platform paths for the configured app name and mode.
func (c *cli) resolvePaths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: c.appName,
		DevMode: c.devMode,
	})
}

// open resolves configuration, logging and storage for one command.
func (c *cli) open(command string) (*runtimeEnv, error) {
	paths, err := c.resolvePaths()
	if err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(c.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("KANFLOW_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(c.dbPath)
	dbOverridden := dbPath != ""
	if !dbOverridden {
		if envPath := strings.TrimSpace(os.Getenv("KANFLOW_DB_PATH")); envPath != "" {
			dbPath = envPath
			dbOverridden = true
		} else {
			dbPath = paths.DBPath
		}
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	settings, err := cfg.Settings()
	if err != nil {
		return nil, fmt.Errorf("resolve settings: %w", err)
	}

	logger, err := newRuntimeLogger(c.stderr, c.appName, c.devMode, cfg.Logging, c.now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.SetConsoleEnabled(!c.quiet)

	logger.Info("startup configuration resolved", "app", c.appName, "dev_mode", c.devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "db_path", dbPath)
	logger.Info("configuration loaded", "config_path", configPath, "db_path", cfg.Database.Path, "log_level", cfg.Logging.Level)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Info("dev file logging enabled", "path", devPath)
	}

	logger.Info("opening sqlite repository", "db_path", cfg.Database.Path)
	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	logger.Info("sqlite repository ready", "db_path", cfg.Database.Path, "migrations", "ensured")

	svc := app.NewService(repo, uuid.NewString, c.now, settings)
	logger.Debug("application service initialized", "board_id", settings.BoardID, "timezone", settings.Location.String(), "workers", settings.Workers)

	return &runtimeEnv{cfg: cfg, paths: paths, logger: logger, repo: repo, svc: svc}, nil
}

// withRuntime opens a runtime for one command and logs its start and outcome.
func (c *cli) withRuntime(command string, fn func(env *runtimeEnv) error) error {
	env, err := c.open(command)
	if err != nil {
		return err
	}
	defer env.Close()

	env.logger.Info("command flow start", "command", command)
	if err := fn(env); err != nil {
		env.logger.Error("command flow failed", "command", command, "err", err)
		return fmt.Errorf("run %s command: %w", command, err)
	}
	env.logger.Info("command flow complete", "command", command)
	return nil
}

// parseBoolEnv parses input into a normalized form.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
