// Package env runs a control task against the simulator bridge: actions go
// out as SET_ELEVATOR commands, observations come back through the state
// cache, and resets teleport the aircraft with SET_PLANE_STATE.
package env

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/san-kum/simbridge/internal/codec"
	"github.com/san-kum/simbridge/internal/initstate"
	"github.com/san-kum/simbridge/internal/metrics"
	"github.com/san-kum/simbridge/internal/observe"
	"github.com/san-kum/simbridge/internal/state"
)

var (
	// ErrStalled means the simulator sent no telemetry within the await
	// timeout.
	ErrStalled = errors.New("env: no telemetry from simulator")

	// ErrSendFailed means a command could not be written to the socket.
	ErrSendFailed = errors.New("env: command not sent")

	// ErrNotReset is returned by Step before the first Reset.
	ErrNotReset = errors.New("env: step before reset")
)

// DefaultAwaitTimeout bounds every wait for fresh telemetry.
const DefaultAwaitTimeout = time.Second

// Source is the read side of the bridge. *cache.Cache implements it.
type Source interface {
	observe.Reader
	Generation() uint64
	Wait(ctx context.Context, since uint64) (uint64, error)
}

// Sender is the write side of the bridge. *ipc.Client implements it.
type Sender interface {
	Send(cmd codec.Command) bool
}

// Environment is the step/reset contract shared by Env and its wrappers.
type Environment interface {
	Reset(ctx context.Context) (state.Vector, error)
	Step(ctx context.Context, action state.Vector) (StepResult, error)
}

type StepResult struct {
	Observation state.Vector
	Reward      float64
	Done        bool
	Info        map[string]any
}

type Options struct {
	// AwaitTimeout bounds each wait for an update. Zero means
	// DefaultAwaitTimeout.
	AwaitTimeout time.Duration
	// SettleUpdates overrides the task's reset settle count when positive.
	SettleUpdates int
	// AwaitStep makes Step wait for one fresh update after sending the
	// action instead of reading whatever is cached.
	AwaitStep bool
	Generator *initstate.Generator
	Logger    *slog.Logger
	Metrics   *metrics.Bridge
}

type Env struct {
	task Task
	src  Source
	out  Sender
	opts Options
	log  *slog.Logger

	requestID int64
	episode   int
	reset     bool
}

func New(task Task, src Source, out Sender, opts Options) *Env {
	if opts.AwaitTimeout <= 0 {
		opts.AwaitTimeout = DefaultAwaitTimeout
	}
	if opts.Generator == nil {
		opts.Generator = initstate.New(initstate.DefaultParams(), time.Now().UnixNano())
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Env{task: task, src: src, out: out, opts: opts, log: log}
}

func (e *Env) Task() Task { return e.task }

// Episode is the number of resets performed so far.
func (e *Env) Episode() int { return e.episode }

func (e *Env) settle() int {
	if e.opts.SettleUpdates > 0 {
		return e.opts.SettleUpdates
	}
	return e.task.SettleUpdates()
}

func (e *Env) nextID() int64 {
	e.requestID++
	return e.requestID
}

// Reset teleports the aircraft to a freshly drawn pose and waits for the
// simulator to report the new state.
func (e *Env) Reset(ctx context.Context) (state.Vector, error) {
	cmd, pose := e.opts.Generator.Command(e.nextID())

	since := e.src.Generation()
	if !e.out.Send(cmd) {
		return nil, fmt.Errorf("%w: %s", ErrSendFailed, cmd.Type)
	}

	e.episode++
	e.log.Info("episode reset",
		"episode", e.episode,
		"heading", pose.Heading,
		"pitch", pose.Pitch,
		"roll", pose.Roll,
		"speed", pose.Speed,
		"altitude", pose.Altitude,
		"settle_updates", e.settle(),
	)

	// Updates that arrive back to back count individually.
	target := since + uint64(e.settle())
	for since < target {
		gen, err := e.await(ctx, since)
		if err != nil {
			return nil, fmt.Errorf("reset: waiting for %d updates: %w", e.settle(), err)
		}
		since = gen
	}

	e.reset = true
	return e.task.Project(e.src), nil
}

// Step sends one elevator command and returns the resulting observation.
// The action is clamped to [-1, 1].
func (e *Env) Step(ctx context.Context, action state.Vector) (StepResult, error) {
	if !e.reset {
		return StepResult{}, ErrNotReset
	}
	start := time.Now()

	elevator := 0.0
	if len(action) > 0 {
		elevator = math.Max(-1, math.Min(1, action[0]))
	}

	since := e.src.Generation()
	cmd := codec.NewCommand(codec.TypeSetElevator, e.nextID(), state.Document{
		"yoke_pitch_ratio": state.Number(elevator),
	})
	if !e.out.Send(cmd) {
		return StepResult{}, fmt.Errorf("%w: %s", ErrSendFailed, cmd.Type)
	}

	gen := since
	if e.opts.AwaitStep {
		var err error
		if gen, err = e.await(ctx, since); err != nil {
			return StepResult{}, fmt.Errorf("step: %w", err)
		}
	}

	obs := e.task.Project(e.src)
	reward := e.task.Reward(obs, e.src)
	e.opts.Metrics.ObserveStep(time.Since(start))

	return StepResult{
		Observation: obs,
		Reward:      reward,
		Info: map[string]any{
			"elevator":   elevator,
			"generation": gen,
		},
	}, nil
}

// await waits for the generation to move past since, bounded by the await
// timeout. A timeout maps to ErrStalled; a cancelled parent context is
// returned as is.
func (e *Env) await(ctx context.Context, since uint64) (uint64, error) {
	waitCtx, cancel := context.WithTimeout(ctx, e.opts.AwaitTimeout)
	defer cancel()

	gen, err := e.src.Wait(waitCtx, since)
	if err == nil {
		return gen, nil
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	e.opts.Metrics.ObserveAwaitTimeout()
	return 0, fmt.Errorf("%w within %s", ErrStalled, e.opts.AwaitTimeout)
}
