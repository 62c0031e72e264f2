package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/simbridge/internal/config"
	"github.com/san-kum/simbridge/internal/ipc"
	"github.com/san-kum/simbridge/internal/metrics"
)

var (
	configFile string
	endpoint   string
	dataDir    string
	logLevel   string
	logFormat  string
	waitFor    time.Duration
	preset     string
	task       string
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "simbridge",
		Short:         "control loop bridge to a flight simulator plugin",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(logLevel, logFormat)
			if err != nil {
				return err
			}
			slog.SetDefault(log)
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file path (yaml)")
	flags.StringVar(&endpoint, "endpoint", config.DefaultEndpoint, "simulator socket path")
	flags.StringVar(&dataDir, "data", config.DefaultDataDir, "data directory")
	flags.StringVar(&logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	flags.StringVar(&logFormat, "log-format", "text", "log format (text|json)")
	flags.DurationVar(&waitFor, "wait", 30*time.Second, "how long to wait for the socket to appear")
	flags.StringVar(&preset, "preset", "", "start from a named preset")
	flags.StringVar(&task, "task", config.DefaultTask, "task (speed|glide_angle)")

	rootCmd.AddCommand(
		newRunCmd(),
		newMonitorCmd(),
		newDumpCmd(),
		newSendCmd(),
		newResetCmd(),
		newSimCmd(),
		newListCmd(),
		newPlotCmd(),
		newExportCmd(),
		newPresetsCmd(),
		newConfigCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newLogger(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(format) {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}
}

// loadConfig layers defaults, the preset, the config file and finally any
// flag the user set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		p := config.GetPreset(task, preset)
		if p == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets(task))
		}
		copied := *p
		cfg = &copied
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("endpoint") {
		cfg.Endpoint = endpoint
	}
	if cmd.Flags().Changed("data") {
		cfg.DataDir = dataDir
	}
	if cmd.Flags().Changed("task") {
		cfg.Task = task
	}
	return cfg, nil
}

// connect waits for the socket, connects and starts the receive loop.
func connect(ctx context.Context, cfg *config.Config, sink ipc.StateSink, bridge *metrics.Bridge, extra ...ipc.Option) (*ipc.Client, error) {
	log := slog.Default()
	if waitFor > 0 {
		waitCtx, cancel := context.WithTimeout(ctx, waitFor)
		err := ipc.WaitForEndpoint(waitCtx, cfg.Endpoint)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("waiting for %s: %w", cfg.Endpoint, err)
		}
	}

	opts := []ipc.Option{
		ipc.WithLogger(log),
		ipc.WithMetrics(bridge),
		ipc.WithDialTimeout(cfg.DialTimeout),
		ipc.WithWriteTimeout(cfg.WriteTimeout),
		ipc.WithMaxFrame(cfg.MaxFrameBytes),
	}
	client := ipc.New(sink, append(opts, extra...)...)
	if err := client.ConnectContext(ctx, cfg.Endpoint); err != nil {
		return nil, err
	}
	if err := client.Start(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
