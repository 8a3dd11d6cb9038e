// Command ragvideo is the library-synchronization service and CLI for a
// personal video-knowledge base: it serves the HTTP sync surface and offers
// the sync verbs (scan, push, pull, copy, rm) plus profile management.
package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pxh52013145/ragvideo/internal/config"
	"github.com/pxh52013145/ragvideo/internal/dify"
	"github.com/pxh52013145/ragvideo/internal/httpapi"
	"github.com/pxh52013145/ragvideo/internal/objstore"
	"github.com/pxh52013145/ragvideo/internal/profile"
	"github.com/pxh52013145/ragvideo/internal/store"
	syncpkg "github.com/pxh52013145/ragvideo/internal/sync"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd.
var (
	flagConfigPath string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// newRootCmd builds the fully-assembled root command. Called once from
// main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "ragvideo",
		Short:   "Video-knowledge library sync service",
		Long:    "Synchronizes a local video-note library with an object store and a RAG backend.",
		Version: version,
		// Errors are printed by Execute's caller; silence cobra's own noise.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (default: platform config dir)")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "machine-readable JSON output")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "errors only")

	cmd.AddCommand(
		newServeCmd(),
		newScanCmd(),
		newPushCmd(),
		newPullCmd(),
		newCopyCmd(),
		newRemoveCmd(),
		newProfileCmd(),
	)

	return cmd
}

// loadConfig resolves the app config from --config or the platform path.
func loadConfig() (*config.Config, error) {
	path := flagConfigPath
	if path == "" {
		path = config.DefaultConfigPath()
	}

	return config.Load(path)
}

// buildLogger creates the process logger. Terminals get text output, pipes
// and services get JSON, unless the config forces a format.
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo

	switch {
	case flagVerbose:
		level = slog.LevelDebug
	case flagQuiet:
		level = slog.LevelError
	default:
		switch strings.ToLower(cfg.Logging.LogLevel) {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	opts := &slog.HandlerOptions{Level: level}

	format := strings.ToLower(cfg.Logging.LogFormat)
	if format == "" {
		if isatty.IsTerminal(os.Stderr.Fd()) {
			format = "text"
		} else {
			format = "json"
		}
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

// cliDeps bundles everything a one-shot CLI command needs.
type cliDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *profile.Registry
	local    *store.Store
}

func buildDeps() (*cliDeps, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger := buildLogger(cfg)

	return &cliDeps{
		cfg:      cfg,
		logger:   logger,
		registry: profile.New(config.RegistryPath(), logger),
		local:    store.New(cfg.Notes.OutputDir, logger),
	}, nil
}

// buildEngine assembles a sync engine for the active profile; a nil snapshot
// disables snapshot persistence (push, pull and rm pass nil, scan does not).
func (d *cliDeps) buildEngine(snapshot *syncpkg.Snapshot) *syncpkg.Engine {
	name, prof := d.registry.Get()
	ragCfg := httpapi.ResolveRagConfig(prof)

	var objects syncpkg.ObjectStore

	if client, err := objstore.New(objstoreConfigFromEnv(), d.logger); err == nil {
		objects = client
	}

	var rag syncpkg.RagClient

	if strings.TrimSpace(ragCfg.ServiceAPIKey) != "" {
		rag = dify.NewKnowledge(ragCfg, nil, d.logger)
	}

	mergeChars, mergeSeconds := config.MergeLimits()

	return syncpkg.NewEngine(syncpkg.Options{
		Local:           d.local,
		Objects:         objects,
		Rag:             rag,
		RagCfg:          ragCfg,
		Profile:         name,
		Snapshot:        snapshot,
		MergeMaxChars:   mergeChars,
		MergeMaxSeconds: mergeSeconds,
		Now:             time.Now,
		Logger:          d.logger,
	})
}

func objstoreConfigFromEnv() objstore.Config {
	env := config.LoadObjectStoreEnv()

	return objstore.Config{
		Endpoint:        env.Endpoint,
		AccessKey:       env.AccessKey,
		SecretKey:       env.SecretKey,
		Secure:          env.Secure,
		Region:          env.Region,
		BucketPrefix:    env.BucketPrefix,
		ObjectPrefix:    env.ObjectPrefix,
		TombstonePrefix: env.TombstonePrefix,
	}
}

// printResult renders a command result: pretty JSON under --json, compact
// JSON otherwise (every result type is already an API payload).
func printResult(v any) error {
	var (
		data []byte
		err  error
	)

	if flagJSON {
		data, err = json.MarshalIndent(v, "", "  ")
	} else {
		data, err = json.Marshal(v)
	}

	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	fmt.Println(string(data))

	return nil
}
