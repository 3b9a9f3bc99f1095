package main

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/syncq/internal/cliconfig"
	"github.com/bft-labs/syncq/pkg/syncq"
)

const helpDescription = `
Queue writes while offline and replay them against your backend once the
network is back.

Highlights:
  - Mutations are persisted locally (SQLite by default) and survive restarts.
  - Replays run one at a time; one failing item never stops the rest.
  - Items that keep failing are parked after max-retries for inspection.
  - Configure via file, env (SYNCQ_*), or flags.
`

var exampleUsage = strings.TrimSpace(`
  syncq enqueue --owner u1 --resource todos --op create --payload '{"title":"milk"}'
  syncq sync --service-url https://api.example.com
  syncq run --config $HOME/.syncq/config.toml
  syncq list --owner u1
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return syncq.Version
}

// app carries the resolved configuration and logger into subcommands.
type app struct {
	cfg     cliconfig.Config
	cfgPath string
	log     zerolog.Logger
	closer  io.Closer
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "syncq: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{cfg: cliconfig.DefaultConfig(), log: zerolog.Nop()}

	root := &cobra.Command{
		Use:           "syncq",
		Short:         "Offline mutation queue with background replay",
		Long:          strings.TrimSpace(helpDescription),
		Example:       exampleUsage,
		Version:       fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if a.closer != nil {
				return a.closer.Close()
			}
			return nil
		},
	}

	cfg := &a.cfg
	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", "", "path to config file (default: $HOME/.syncq/config.toml)")
	pf.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "queue database path")
	pf.StringVar(&cfg.Backend, "backend", cfg.Backend, "queue backend: sqlite or file")
	pf.StringVar(&cfg.ServiceURL, "service-url", cfg.ServiceURL, "base URL mutations are replayed against")
	pf.StringVar(&cfg.ProbeURL, "probe-url", cfg.ProbeURL, "URL probed for connectivity (always online when empty)")
	pf.StringVar(&cfg.AuthToken, "auth-token", cfg.AuthToken, "bearer token used when a mutation has no credential reference")
	pf.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "connectivity poll interval")
	pf.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "per-request timeout")
	pf.DurationVar(&cfg.ItemPacing, "item-pacing", cfg.ItemPacing, "pause between replayed items")
	pf.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "failed attempts before an item is parked")
	pf.IntVar(&cfg.Concurrency, "concurrency", cfg.Concurrency, "items replayed in parallel")
	pf.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "directory for later-retry markers (disabled when empty)")
	pf.StringVar(&cfg.QueueName, "queue-name", cfg.QueueName, "name used for later-retry registration")
	pf.BoolVar(&cfg.SyncOnReconnect, "sync-on-reconnect", cfg.SyncOnReconnect, "drain automatically when connectivity returns")
	pf.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write JSON logs to a rotating file instead of stderr")
	pf.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(
		newRunCmd(a),
		newSyncCmd(a),
		newEnqueueCmd(a),
		newListCmd(a),
		newStatsCmd(a),
		newDiscardCmd(a),
		newClearCmd(a),
	)
	return root
}

// load resolves configuration with precedence flags > env > file > defaults.
func (a *app) load(cmd *cobra.Command) error {
	cfgFile := a.cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	changed := map[string]bool{}
	cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&a.cfg, fc, changed); err != nil {
			return err
		}
	}

	if err := cliconfig.ApplyEnvConfig(&a.cfg, changed); err != nil {
		return err
	}

	if err := a.cfg.Validate(); err != nil {
		return err
	}

	logger, closer, err := cliconfig.NewLogger(a.cfg)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	a.log = logger
	a.closer = closer

	logCfg := a.cfg
	if logCfg.AuthToken != "" {
		logCfg.AuthToken = "*****"
	}
	a.log.Debug().Interface("config", logCfg).Msg("configuration")
	return nil
}
