package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/urmzd/hass-mcp/pkg/config"
	"github.com/urmzd/hass-mcp/pkg/device"
	"github.com/urmzd/hass-mcp/pkg/homeassistant"
	"github.com/urmzd/hass-mcp/pkg/logging"
	homeassistantmcp "github.com/urmzd/hass-mcp/pkg/mcp"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type options struct {
	envFile  string
	logLevel string
	demo     bool
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "hass-mcp",
		Short:         "MCP server exposing Home Assistant devices as tools over stdio",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts, stdin, stdout, stderr)
		},
	}
	root.SetOut(stderr)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Path to a dotenv file read before the environment")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	root.Flags().BoolVar(&opts.demo, "demo", false, "Serve a built-in in-memory house instead of a real hub")

	root.AddCommand(newCheckCmd(opts, stdout, stderr), newVersionCmd(stdout))
	return root
}

// setup loads configuration and builds the diagnostic logger.
func setup(opts *options, stderr io.Writer) (config.Config, zerolog.Logger, func() error, error) {
	cfg, err := config.LoadFromOS(opts.envFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return config.Config{}, zerolog.Nop(), nil, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}

	logger, closeLog, err := logging.New(stderr, cfg.Level(), cfg.LogFile)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %s\n", err)
		return config.Config{}, zerolog.Nop(), nil, err
	}
	return cfg, logger, closeLog, nil
}

func runServe(ctx context.Context, opts *options, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, logger, closeLog, err := setup(opts, stderr)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeLog(); err != nil {
			fmt.Fprintf(stderr, "Error: failed to close log file: %s\n", err)
		}
	}()

	var hub device.Hub
	if opts.demo {
		logger.Warn().Msg("Demo mode: serving the built-in in-memory house")
		hub = device.NewMemoryHub(device.DemoStates()...)
	} else {
		if err := cfg.Hub.Validate(); err != nil {
			logger.Error().Err(err).Msg("Invalid configuration")
			return err
		}
		logger.Debug().Object("hub", cfg.Hub).Msg("Home Assistant connection configured")
		hub = homeassistant.NewClient(cfg.Hub, logger)
	}

	server, err := homeassistantmcp.NewServer(hub, logger, version)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to build tool registry")
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info().Str("version", version).Msg("Starting MCP server on stdio")

	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, stdin, stdout)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("MCP server failed")
			return err
		}
		logger.Info().Msg("Input closed, shutting down")
	case <-ctx.Done():
		logger.Info().Msg("Signal received, shutting down")
	}
	return nil
}

func newCheckCmd(opts *options, stdout, stderr io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify that the hub is reachable and accepts the token",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, closeLog, err := setup(opts, stderr)
			if err != nil {
				return err
			}
			defer closeLog()

			if err := cfg.Hub.Validate(); err != nil {
				logger.Error().Err(err).Msg("Invalid configuration")
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Hub.Timeout+time.Second)
			defer cancel()

			client := homeassistant.NewClient(cfg.Hub, logger)
			msg, err := client.Ping(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Hub check failed")
				return err
			}
			states, err := client.ListStates(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("Hub check failed")
				return err
			}

			fmt.Fprintf(stdout, "%s (%d entities)\n", msg, len(states))
			return nil
		},
	}
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(stdout, version)
		},
	}
}
