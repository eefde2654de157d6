package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"llamad/internal/config"
)

// cli carries what the persistent flags resolve to.
type cli struct {
	configPath string
	logLevel   string
	logFormat  string

	cfg config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:           "llamad",
		Short:         "Serve and drive local llama.cpp models",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&c.configPath, "config", os.Getenv("LLAMAD_CONFIG"), "Config file (.yaml, .yml, .json or .toml)")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "Log level: debug|info|warn|error (defaults to config or info)")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "Log format: console|json (defaults to config or console)")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return c.setup(cmd.ErrOrStderr())
	}

	root.AddCommand(newServeCmd(c), newPredictCmd(c), newEmbedCmd(c), newStateCmd(c))
	return root
}

// setup loads the config file, lets flags override it and builds the logger.
func (c *cli) setup(logOut io.Writer) error {
	if c.configPath != "" {
		cfg, err := config.Load(c.configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		c.cfg = cfg
	}
	if c.logLevel != "" {
		c.cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		c.cfg.Log.Format = c.logFormat
	}
	log, err := newLogger(logOut, c.cfg.Log)
	if err != nil {
		return err
	}
	c.log = log
	return nil
}

func newLogger(w io.Writer, lc config.LogConfig) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if lc.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", lc.Level, err)
		}
		level = l
	}
	switch strings.ToLower(lc.Format) {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", lc.Format)
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}

// splitCSV splits a comma-separated flag value, dropping blanks.
func splitCSV(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
