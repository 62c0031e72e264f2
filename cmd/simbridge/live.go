package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/san-kum/simbridge/internal/cache"
	"github.com/san-kum/simbridge/internal/codec"
	"github.com/san-kum/simbridge/internal/env"
	"github.com/san-kum/simbridge/internal/initstate"
	"github.com/san-kum/simbridge/internal/ipc"
	"github.com/san-kum/simbridge/internal/observe"
	"github.com/san-kum/simbridge/internal/state"
	"github.com/san-kum/simbridge/internal/viz"
)

var (
	theme     string
	count     int
	projected bool
	requestID int64
	resetSeed int64
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "watch live telemetry in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			projector, ok := observe.ByName(cfg.Task)
			if !ok {
				return fmt.Errorf("unknown task %q", cfg.Task)
			}

			store := cache.New()
			client, err := connect(cmd.Context(), cfg, store, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			m := viz.NewMonitor(store, projector,
				viz.WithTheme(theme),
				viz.WithStatus(func() string { return client.Status().String() }))
			return viz.RunMonitor(cmd.Context(), m)
		},
	}
	cmd.Flags().StringVar(&theme, "theme", "cockpit", "color theme ("+strings.Join(viz.ThemeNames(), "|")+")")
	return cmd
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "print telemetry documents as they arrive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			projector, ok := observe.ByName(cfg.Task)
			if !ok {
				return fmt.Errorf("unknown task %q", cfg.Task)
			}

			ctx := cmd.Context()
			store := cache.New()
			client, err := connect(ctx, cfg, store, nil, ipc.WithOutOfBand(func(msg codec.Envelope) {
				slog.Info("message", "type", msg.Type, "request_id", msg.RequestID)
			}))
			if err != nil {
				return err
			}
			defer client.Close()

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			err = dumpUpdates(ctx, store, client.Done(), cfg.AwaitTimeout, count, func() error {
				if projected {
					printObservation(observe.Labels(projector), projector.Project(store))
					return nil
				}
				doc, _ := store.State()
				return enc.Encode(doc)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 1, "number of updates to print (0 for no limit)")
	cmd.Flags().BoolVar(&projected, "observe", false, "print the task observation instead of the raw document")
	return cmd
}

type updateWaiter interface {
	Wait(ctx context.Context, since uint64) (uint64, error)
}

// dumpUpdates calls emit once per new generation until limit updates were
// seen (limit <= 0 means no limit). Every wait is bounded by timeout and
// ends early when closed fires.
func dumpUpdates(ctx context.Context, src updateWaiter, closed <-chan struct{}, timeout time.Duration, limit int, emit func() error) error {
	var since uint64
	for n := 0; limit <= 0 || n < limit; n++ {
		gen, err := nextUpdate(ctx, src, closed, since, timeout)
		if err != nil {
			return err
		}
		since = gen
		if err := emit(); err != nil {
			return err
		}
	}
	return nil
}

func nextUpdate(ctx context.Context, src updateWaiter, closed <-chan struct{}, since uint64, timeout time.Duration) (uint64, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	go func() {
		select {
		case <-closed:
			cancel()
		case <-waitCtx.Done():
		}
	}()

	gen, err := src.Wait(waitCtx, since)
	switch {
	case err == nil:
		return gen, nil
	case ctx.Err() != nil:
		return 0, ctx.Err()
	}
	select {
	case <-closed:
		return 0, fmt.Errorf("%w: connection closed", ipc.ErrNotConnected)
	default:
		return 0, fmt.Errorf("%w within %s", env.ErrStalled, timeout)
	}
}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send [type] [json-data]",
		Short: "send one command to the simulator",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			data := state.Document{}
			if len(args) == 2 {
				var raw map[string]any
				if err := json.Unmarshal([]byte(args[1]), &raw); err != nil {
					return fmt.Errorf("invalid data: %w", err)
				}
				if data, err = state.DocumentFrom(raw); err != nil {
					return fmt.Errorf("invalid data: %w", err)
				}
			}

			client, err := connect(cmd.Context(), cfg, cache.New(), nil)
			if err != nil {
				return err
			}
			defer client.Close()

			if !client.Send(codec.NewCommand(args[0], requestID, data)) {
				return fmt.Errorf("send %s failed", args[0])
			}
			fmt.Printf("sent %s (request %d)\n", args[0], requestID)
			return nil
		},
	}
	cmd.Flags().Int64Var(&requestID, "request-id", 1, "request id")
	return cmd
}

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "put the aircraft in a random starting state and print the first observation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Seed = resetSeed
			}
			if cfg.Seed == 0 {
				cfg.Seed = time.Now().UnixNano()
			}
			task, err := env.TaskByName(cfg.Task)
			if err != nil {
				return err
			}

			store := cache.New()
			client, err := connect(cmd.Context(), cfg, store, nil)
			if err != nil {
				return err
			}
			defer client.Close()

			gen := initstate.New(initstate.DefaultParams(), cfg.Seed)
			e := env.New(task, store, client, env.Options{
				AwaitTimeout:  cfg.AwaitTimeout,
				SettleUpdates: cfg.ResetSettleUpdates,
				Generator:     gen,
			})
			obs, err := e.Reset(cmd.Context())
			if err != nil {
				return err
			}
			printObservation(observe.Labels(task), obs)
			return nil
		},
	}
	cmd.Flags().Int64Var(&resetSeed, "seed", 0, "random seed")
	return cmd
}

func printObservation(labels []string, obs state.Vector) {
	for i, v := range obs {
		label := fmt.Sprintf("slot %d", i)
		if i < len(labels) {
			label = labels[i]
		}
		fmt.Printf("  %-24s %12.6f\n", label, v)
	}
	fmt.Println()
}
