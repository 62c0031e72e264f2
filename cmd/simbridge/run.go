package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/simbridge/internal/cache"
	"github.com/san-kum/simbridge/internal/config"
	"github.com/san-kum/simbridge/internal/controllers"
	"github.com/san-kum/simbridge/internal/env"
	"github.com/san-kum/simbridge/internal/initstate"
	"github.com/san-kum/simbridge/internal/metrics"
	"github.com/san-kum/simbridge/internal/observe"
	"github.com/san-kum/simbridge/internal/recorder"
	"github.com/san-kum/simbridge/internal/storage"
)

var (
	controller     string
	episodes       int
	seed           int64
	kp             float64
	ki             float64
	kd             float64
	target         float64
	stepsPerSecond float64
	maxSteps       int
	awaitStep      bool
	metricsAddr    string
	influxURL      string
	noSave         bool
)

// stabilityTolerance is how far the tracked slot may stray from its
// setpoint and still count as stable.
const stabilityTolerance = 1.0

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "run control episodes against the simulator",
		Args:  cobra.NoArgs,
		RunE:  runEpisodes,
	}
	cmd.Flags().StringVar(&controller, "controller", "random", "controller ("+joinNames(controllers.Names())+")")
	cmd.Flags().IntVar(&episodes, "episodes", config.DefaultEpisodes, "number of episodes")
	cmd.Flags().Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	cmd.Flags().Float64Var(&kp, "kp", 0.05, "pid kp")
	cmd.Flags().Float64Var(&ki, "ki", 0.01, "pid ki")
	cmd.Flags().Float64Var(&kd, "kd", 0.0, "pid kd")
	cmd.Flags().Float64Var(&target, "target", -6, "pid target")
	cmd.Flags().Float64Var(&stepsPerSecond, "rate", config.DefaultStepsPerSecond, "steps per second")
	cmd.Flags().IntVar(&maxSteps, "max-steps", config.DefaultMaxEpisodeSteps, "steps per episode (0 for no limit)")
	cmd.Flags().BoolVar(&awaitStep, "await-step", false, "wait for fresh telemetry after every action")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve prometheus metrics on this address")
	cmd.Flags().StringVar(&influxURL, "influx-url", "", "record telemetry to this InfluxDB")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "do not persist the run")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("controller") {
		cfg.Controller = controller
	}
	if f.Changed("episodes") {
		cfg.Episodes = episodes
	}
	if f.Changed("seed") || cfg.Seed == 0 {
		cfg.Seed = seed
	}
	if f.Changed("kp") {
		cfg.ControllerParams.Kp = kp
	}
	if f.Changed("ki") {
		cfg.ControllerParams.Ki = ki
	}
	if f.Changed("kd") {
		cfg.ControllerParams.Kd = kd
	}
	if f.Changed("target") {
		cfg.ControllerParams.Target = target
	}
	if f.Changed("rate") {
		cfg.StepsPerSecond = stepsPerSecond
	}
	if f.Changed("max-steps") {
		cfg.MaxEpisodeSteps = maxSteps
	}
	if f.Changed("await-step") {
		cfg.AwaitStep = awaitStep
	}
	if f.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if f.Changed("influx-url") {
		cfg.Influx.URL = influxURL
	}
}

func runEpisodes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	applyRunFlags(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}
	log := slog.Default().With("task", cfg.Task, "controller", cfg.Controller)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	bridge := metrics.NewBridge(reg)

	store := cache.New()
	client, err := connect(ctx, cfg, store, bridge)
	if err != nil {
		return err
	}
	defer client.Close()

	task, err := env.TaskByName(cfg.Task)
	if err != nil {
		return err
	}
	environment, obsLabels := buildEnvironment(cfg, task, store, client, bridge, log)

	ctrl, err := controllers.New(cfg.Controller, cfg.ControllerSettings(), 1, cfg.Seed)
	if err != nil {
		return err
	}
	runMetrics := []metrics.Metric{
		metrics.NewTotalReward(),
		metrics.NewControlEffort(),
		stabilityMetric(task, store),
	}

	var run *storage.Run
	if !noSave {
		st := storage.New(cfg.DataDir)
		if err := st.Init(); err != nil {
			return err
		}
		run, err = st.Create(storage.RunMetadata{
			Task:              cfg.Task,
			Controller:        cfg.Controller,
			Endpoint:          cfg.Endpoint,
			Seed:              cfg.Seed,
			StepsPerSecond:    cfg.StepsPerSecond,
			ObservationLabels: obsLabels,
			ActionSize:        1,
		})
		if err != nil {
			return err
		}
		log = log.With("run", run.ID())
	}

	runner := &env.Runner{
		Env:        environment,
		Controller: ctrl,
		Metrics:    runMetrics,
		Bridge:     bridge,
		Logger:     log,
	}
	if run != nil {
		runner.OnStep = func(rec env.StepRecord) {
			err := run.WriteStep(storage.Step{
				Episode:     rec.Episode,
				Step:        rec.Step,
				Time:        rec.Time,
				Reward:      rec.Reward,
				Done:        rec.Done,
				Observation: rec.Observation,
				Action:      rec.Action,
			})
			if err != nil {
				log.Warn("failed to write step", "error", err)
			}
		}
		runner.OnEpisode = func(res env.EpisodeResult) {
			err := run.EndEpisode(storage.EpisodeSummary{
				Episode:     res.Episode,
				Steps:       res.Steps,
				TotalReward: res.TotalReward,
				Seconds:     res.Duration.Seconds(),
				Metrics:     res.Metrics,
			})
			if err != nil {
				log.Warn("failed to save episode", "error", err)
			}
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.MetricsAddr != "" {
		serveMetrics(gctx, g, cfg.MetricsAddr, reg, log)
	}
	if cfg.Influx.Enabled() {
		w, closeWriter := recorder.NewInfluxWriter(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		defer closeWriter()
		tags := map[string]string{"task": cfg.Task}
		if run != nil {
			tags["run"] = run.ID()
		}
		rec := recorder.New(store, w,
			recorder.WithLogger(log),
			recorder.WithMeasurement(cfg.Influx.Measurement),
			recorder.WithTags(tags))
		g.Go(func() error { return rec.Run(gctx) })
	}

	var results []env.EpisodeResult
	start := time.Now()
	g.Go(func() error {
		defer cancel()
		var err error
		results, err = runner.Run(gctx, cfg.Episodes)
		return err
	})

	runErr := g.Wait()
	interrupted := errors.Is(runErr, context.Canceled) && cmd.Context().Err() != nil
	if interrupted {
		log.Info("interrupted")
		runErr = nil
	}

	summary := summarize(results)
	if run != nil {
		if err := run.Close(summary); err != nil {
			log.Warn("failed to close run", "error", err)
		}
		fmt.Printf("run id: %s\n", run.ID())
	}
	fmt.Printf("episodes: %d in %v\n", len(results), time.Since(start).Round(time.Millisecond))
	for _, name := range sortedKeys(summary) {
		fmt.Printf("  %s: %.6f\n", name, summary[name])
	}
	return runErr
}

// buildEnvironment wraps the base environment in the configured decorators.
// The innermost wrapper paces actions; the outermost stacks observations.
func buildEnvironment(cfg *config.Config, task env.Task, store *cache.Cache, out env.Sender, bridge *metrics.Bridge, log *slog.Logger) (env.Environment, []string) {
	var e env.Environment = env.New(task, store, out, env.Options{
		AwaitTimeout:  cfg.AwaitTimeout,
		SettleUpdates: cfg.ResetSettleUpdates,
		AwaitStep:     cfg.AwaitStep,
		Generator:     initstate.New(initstate.DefaultParams(), cfg.Seed),
		Logger:        log,
		Metrics:       bridge,
	})
	e = env.NewTimedActions(e, cfg.StepsPerSecond)
	if cfg.BadEpisode.Enabled {
		e = env.NewEndOfBadEpisodes(e, cfg.BadEpisode.Limit, cfg.BadEpisode.Window, cfg.BadEpisode.Penalty, log)
	}
	if cfg.MaxEpisodeSteps > 0 || cfg.MaxEpisodeDuration > 0 {
		e = env.NewTimeLimit(e, cfg.MaxEpisodeSteps, cfg.MaxEpisodeDuration)
	}

	labels := observe.Labels(task)
	if n := cfg.ObservationBuffer; n > 1 {
		e = env.NewObservationBuffer(e, n)
		stacked := make([]string, 0, n*len(labels))
		for i := n - 1; i >= 0; i-- {
			for _, l := range labels {
				stacked = append(stacked, fmt.Sprintf("%s[t-%d]", l, i))
			}
		}
		labels = stacked
	}
	return e, labels
}

// stabilityMetric measures against the same setpoint the task rewards. For
// the glide task that is the value the simulator currently publishes.
func stabilityMetric(task env.Task, r observe.Reader) metrics.Metric {
	if t, ok := task.(*env.SpeedTask); ok {
		return metrics.NewStability(observe.SpeedSlotIAS, t.TargetKnots*initstate.KnotsToMS, stabilityTolerance)
	}
	m := metrics.NewStability(observe.GlideSlotAngle, 0, stabilityTolerance)
	m.Setpoint = func() float64 { return observe.GlideAngle{}.Target(r) }
	return m
}

func serveMetrics(ctx context.Context, g *errgroup.Group, addr string, reg *prometheus.Registry, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	g.Go(func() error {
		log.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
}

// summarize averages the per-episode metrics.
func summarize(results []env.EpisodeResult) map[string]float64 {
	out := make(map[string]float64)
	if len(results) == 0 {
		return out
	}
	for _, r := range results {
		for k, v := range r.Metrics {
			out["mean_"+k] += v / float64(len(results))
		}
	}
	best := results[0].TotalReward
	for _, r := range results[1:] {
		best = max(best, r.TotalReward)
	}
	out["best_total_reward"] = best
	return out
}
