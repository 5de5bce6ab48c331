package main

import (
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/yegors/co-atis/internal/config"
	"github.com/yegors/co-atis/pkg/logger"
)

var version = "dev"

// globalOptions are the flags shared by every subcommand
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}

	cmd := &cobra.Command{
		Use:   "co-atis",
		Short: "co-atis - live ATIS capture, transcription and translation",
		Long: `co-atis records a live ATIS broadcast for a configured airport,
transcribes it, extracts and translates the weather information and
draws a diagram of it.

Only one ATIS run is processed at a time; concurrent requests are
rejected rather than queued.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Path to the TOML configuration file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override the log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Override the log format (json, console)")

	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newProcessCommand(opts))
	cmd.AddCommand(newAirportsCommand(opts))

	return cmd
}

func execute() error {
	return newRootCommand().Execute()
}

// loadConfig reads the configuration and applies flag overrides
func (o *globalOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger. Commands that print results to
// stdout log to stderr instead.
func newLogger(cfg *config.Config, output io.Writer) (*logger.Logger, error) {
	if output == nil {
		output = os.Stdout
	}
	return logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: output,
	})
}
