package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"unhabit/internal/config"
	"unhabit/internal/logging"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	offline     bool
	timeout     time.Duration
	traceFile   string
	traceSpans bool

	// Set up by PersistentPreRunE
	cfg             *config.Config
	logger          *zap.Logger
	shutdownTracing func(context.Context) error
)

// rootCmd runs an interactive coaching session
var rootCmd = &cobra.Command{
	Use:   "unhabit",
	Short: "Habit coaching: safety screening, quiz, 21-day plan and a coach",
	Long: `unhabit turns a description of a habit you want to change into a
tailored quiz, a habit profile, a 21-day plan, and an ongoing conversation
with a coach.

Every step is produced by a language model and checked before use. When the
model is unavailable or returns something unusable, a safe built-in version
is used instead.

Run without arguments to start an interactive session.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shutdownTracing != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownTracing(ctx)
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: runInteractive,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath(), "Config file")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Do not call a model; use built-in content only")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 0, "Per-call model timeout (overrides config)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace-file", "", "Append one JSON line per model call to this file")
	rootCmd.PersistentFlags().BoolVar(&traceSpans, "trace-spans", false, "Print OpenTelemetry spans to stderr")

	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(screenCmd)
	rootCmd.AddCommand(guidanceCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir + "/unhabit/config.yaml"
	}
	return "unhabit.yaml"
}

// setup loads .env and configuration, applies flag overrides and builds the
// logger. Provider settings are validated only by commands that call a model.
func setup(cmd *cobra.Command, args []string) error {
	envErr := godotenv.Load()

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}
	if offline {
		cfg.LLM.Provider = "offline"
	}
	if timeout > 0 {
		cfg.LLM.Timeout = timeout.String()
	}
	if traceFile != "" {
		cfg.Tracing.TraceFile = traceFile
	}
	if traceSpans {
		cfg.Tracing.Spans = true
	}

	logger, err = logging.New(cfg.Logging, verbose)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	boot := logging.For(logger, logging.CategoryBoot)
	if envErr != nil {
		boot.Debug("no .env file loaded", zap.Error(envErr))
	}
	boot.Debug("configuration loaded",
		zap.String("path", configPath),
		zap.String("provider", cfg.LLM.Provider))

	shutdownTracing, err = setupTracing(cfg.Tracing, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	return nil
}
