package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pseudodojo/psdist/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose    int
	workDir    string
	configPath string
	logger     = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:          "psdist",
	Short:        "Build and publish the pseudopotential distribution",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `psdist downloads the upstream pseudopotential datasets, bundles every
table per format and writes the files.json and targz.json indices consumed by
the website.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := newLogger(verbose)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		logger = l
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbose, "verbose", "v", "increase log verbosity")
	rootCmd.PersistentFlags().StringVarP(&workDir, "workdir", "w", ".", "working directory holding the distribution")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "repository configuration (default <workdir>/"+config.FileName+")")
}

func newLogger(verbosity int) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.DisableStacktrace = true
	if verbosity > 0 {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	return cfg.Build()
}

// resolveWorkDir returns the absolute working directory, creating it.
func resolveWorkDir() (string, error) {
	dir, err := filepath.Abs(workDir)
	if err != nil {
		return "", fmt.Errorf("cannot resolve workdir %s: %w", workDir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create workdir %s: %w", dir, err)
	}
	return dir, nil
}

// loadConfig reads the -c file when given, which must exist. Otherwise it
// reads <dir>/psdist.yaml and falls back to the built-in repository list.
func loadConfig(dir string) (cfg *config.Config, found bool, err error) {
	if configPath != "" {
		cfg, err = config.Load(configPath)
		return cfg, err == nil, err
	}
	return config.LoadWorkDir(dir)
}

// Execute is called by main.go.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
