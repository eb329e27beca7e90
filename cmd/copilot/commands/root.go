// Package commands provides the CLI commands for the copilot client.
package commands

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	copilot "github.com/telnet2/go-copilot"
	"github.com/telnet2/go-copilot/internal/config"
	"github.com/telnet2/go-copilot/internal/logging"
)

// Version information set at build time.
var (
	Version   = "0.1.0"
	BuildTime = "dev"
)

// Global flags
var (
	printLogs bool
	logLevel  string
	backend   string
)

var rootCmd = &cobra.Command{
	Use:   "copilot",
	Short: "copilot - client for long-lived agent sessions",
	Long: `copilot talks to an agent backend process over its stdio protocol.

Run 'copilot chat' for an interactive session, 'copilot models' to list
available models, or 'copilot status' to check the backend.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Best effort; a missing .env is fine.
		godotenv.Load()
	},
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&printLogs, "print-logs", false, "Print logs to stderr")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (DEBUG|INFO|WARN|ERROR)")
	rootCmd.PersistentFlags().StringVar(&backend, "backend", "", "Backend command, overrides the config file")

	rootCmd.SetVersionTemplate(fmt.Sprintf("copilot %s (%s)\n", Version, BuildTime))

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(statusCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// setup loads the file config, builds the logger and starts a client.
func setup(ctx context.Context) (*copilot.Client, *config.Config, error) {
	workDir, err := os.Getwd()
	if err != nil {
		return nil, nil, err
	}

	cfg, err := config.Load(workDir)
	if err != nil {
		return nil, nil, err
	}

	level := logLevel
	if level == "" {
		level = cfg.LogLevel
	}
	logger := zerolog.Nop()
	if printLogs {
		logger = logging.New(logging.Config{
			Level:  logging.ParseLevel(level),
			Pretty: true,
		})
	}

	argv := cfg.Backend
	if backend != "" {
		argv = strings.Fields(backend)
	}
	if len(argv) == 0 {
		return nil, nil, fmt.Errorf("no backend configured; set backend in copilot.json or pass --backend")
	}

	client := copilot.NewClient(copilot.ClientConfig{Command: argv, Logger: &logger})
	if err := client.Start(ctx); err != nil {
		return nil, nil, err
	}
	return client, cfg, nil
}
