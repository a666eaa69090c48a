package sync

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sidkik/replisync/cmd/util"
	"github.com/sidkik/replisync/pkg/config"
	"github.com/sidkik/replisync/pkg/driver"
	"github.com/sidkik/replisync/pkg/errors"
	"github.com/sidkik/replisync/pkg/fswatch"
	"github.com/sidkik/replisync/pkg/logging"
	"github.com/sidkik/replisync/pkg/sync"
)

// Mocked for unit testing.
var parseSyncConfig = config.ParseSyncConfig

type syncCmd struct {
	configPath string
	once       bool
	flags      config.SyncConfig
}

// New creates a new `sync` command.
func New() *cobra.Command {
	var cmd syncCmd
	cobraCmd := &cobra.Command{
		Use:   "sync [source] [replica]",
		Short: "Keep a replica directory identical to a source directory",
		Long: `Periodically make the replica directory an exact copy of the source directory.

Files that are new or changed in the source are copied to the replica, and
anything in the replica that isn't in the source is removed. Every change is
recorded in the log file.

The source and replica can also be set in a config file with --config. Flags
that are explicitly set override the values in the config file.`,
		Args: cobra.MaximumNArgs(2),
		Run: func(cobraCmd *cobra.Command, args []string) {
			cfg, err := cmd.getConfig(cobraCmd.Flags(), args)
			if err != nil {
				util.HandleFatalError(err)
			}

			if err := run(cfg, cmd.once); err != nil {
				util.HandleFatalError(err)
			}
		},
	}

	cmd.bindFlags(cobraCmd.Flags())
	return cobraCmd
}

func (cmd *syncCmd) bindFlags(flags *pflag.FlagSet) {
	defaults := config.DefaultSyncConfig()
	flags.StringVar(&cmd.configPath, "config", "",
		"Path to a YAML config file containing the sync settings.")
	flags.StringVar(&cmd.flags.LogFile, "log", defaults.LogFile,
		"Path to the log file. Log entries are appended to it.")
	flags.IntVar(&cmd.flags.Interval, "interval", defaults.Interval,
		"Number of seconds to wait between synchronizations.")
	flags.BoolVar(&cmd.flags.UseHash, "use-hash", false,
		"Compare file contents rather than modification times.")
	flags.StringVar(&cmd.flags.HashAlgorithm, "hash-algorithm", defaults.HashAlgorithm,
		"Hash algorithm used with --use-hash. One of sha512, md5 or blake2b.")
	flags.BoolVar(&cmd.flags.Watch, "watch", false,
		"Also synchronize as soon as the source changes.")
	flags.BoolVar(&cmd.once, "once", false,
		"Synchronize once and exit.")
}

// getConfig merges the config file, the positional arguments and the flags
// into the config for the run. Flags and arguments take precedence over the
// config file.
func (cmd syncCmd) getConfig(flags *pflag.FlagSet, args []string) (config.SyncConfig, error) {
	cfg := config.DefaultSyncConfig()
	if cmd.configPath != "" {
		var err error
		cfg, err = parseSyncConfig(cmd.configPath)
		if err != nil {
			if notFound, ok := errors.RootCause(err).(errors.FileNotFound); ok {
				return config.SyncConfig{}, errors.NewFriendlyError(
					"Config file not found at %q.", notFound.Path)
			}
			return config.SyncConfig{}, errors.WithContext(err, "parse config")
		}
	}

	if len(args) > 0 {
		cfg.Source = args[0]
	}
	if len(args) > 1 {
		cfg.Replica = args[1]
	}

	if flags.Changed("log") {
		cfg.LogFile = cmd.flags.LogFile
	}
	if flags.Changed("interval") {
		cfg.Interval = cmd.flags.Interval
	}
	if flags.Changed("use-hash") {
		cfg.UseHash = cmd.flags.UseHash
	}
	if flags.Changed("hash-algorithm") {
		cfg.HashAlgorithm = cmd.flags.HashAlgorithm
	}
	if flags.Changed("watch") {
		cfg.Watch = cmd.flags.Watch
	}

	if cfg.Source == "" || cfg.Replica == "" {
		return config.SyncConfig{}, errors.NewFriendlyError(
			"Both a source and a replica directory are required.\n" +
				"Usage: replisync sync SOURCE REPLICA [flags]")
	}

	if err := cfg.Expand(); err != nil {
		return config.SyncConfig{}, errors.WithContext(err, "expand paths")
	}

	if err := cfg.Validate(); err != nil {
		if missing, ok := errors.RootCause(err).(errors.MissingFieldError); ok {
			return config.SyncConfig{}, errors.NewFriendlyError(
				"The %q field is required.", missing.Field)
		}
		return config.SyncConfig{}, err
	}
	return cfg, nil
}

func run(cfg config.SyncConfig, once bool) error {
	logger, err := logging.Open(afero.NewOsFs(), cfg.LogFile, os.Stdout)
	if err != nil {
		return errors.NewFriendlyError("Failed to open the log file %q:\n%s", cfg.LogFile, err)
	}
	defer func() {
		if err := logger.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close log file")
		}
	}()
	logger.SetLevel(logrus.GetLevel())

	// Packages that log through the standard logger write to the same file.
	logrus.SetOutput(logger.Out)
	logrus.SetFormatter(logging.LineFormatter{})

	driverCfg := driver.Config{
		Source:   cfg.Source,
		Replica:  cfg.Replica,
		Interval: cfg.GetInterval(),
		Once:     once,
	}
	if cfg.Watch && !once {
		watcher, err := startWatcher(logger.Logger, cfg.Source)
		if err == nil {
			defer watcher.Close()
			driverCfg.Trigger = watcher.Changes()
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	syncer := sync.NewSynchronizer(afero.NewOsFs(), logger.Logger, cfg.GetSyncOptions())
	err = driver.New(syncer, clockwork.NewRealClock(), logger.Logger, driverCfg).Run(ctx)
	if err != nil {
		return toFriendlyError(err)
	}
	return nil
}

// startWatcher watches the source for changes. Failing to watch isn't fatal
// since the interval still triggers passes.
func startWatcher(logger *logrus.Logger, source string) (*fswatch.Watcher, error) {
	if err := setOpenFilesLimit(); err != nil {
		logger.WithError(err).Warn("Failed to increase the kernel limit on open files. " +
			"Watching large directories may fail.")
	}

	watcher, err := fswatch.Watch(source)
	if err != nil {
		logger.WithError(err).Warn("Failed to watch the source for changes. " +
			"Falling back to only synchronizing on the interval.")
		return nil, err
	}
	return watcher, nil
}

func toFriendlyError(err error) error {
	switch cause := errors.RootCause(err).(type) {
	case errors.FileNotFound:
		return errors.NewFriendlyError("The source directory %q does not exist.", cause.Path)
	case errors.NotADirectory:
		return errors.NewFriendlyError("The source %q is not a directory.", cause.Path)
	}
	return errors.WithContext(err, "sync")
}
