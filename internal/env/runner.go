package env

import (
	"context"
	"log/slog"
	"time"

	"github.com/san-kum/simbridge/internal/controllers"
	"github.com/san-kum/simbridge/internal/metrics"
	"github.com/san-kum/simbridge/internal/state"
)

// StepRecord is one step of an episode as seen by the runner.
type StepRecord struct {
	Episode     int
	Step        int
	Time        float64
	Observation state.Vector
	Action      state.Vector
	Reward      float64
	Done        bool
}

type EpisodeResult struct {
	Episode     int
	Steps       int
	TotalReward float64
	Duration    time.Duration
	Metrics     map[string]float64
}

// Runner drives a controller through a number of episodes.
type Runner struct {
	Env        Environment
	Controller controllers.Controller
	Metrics    []metrics.Metric
	Bridge     *metrics.Bridge
	Logger     *slog.Logger

	// MaxSteps ends an episode the environment never ends itself. Zero
	// means no limit.
	MaxSteps int

	OnStep    func(StepRecord)
	OnEpisode func(EpisodeResult)
}

// Run plays episodes until done or ctx is cancelled. It returns the results
// of every finished episode.
func (r *Runner) Run(ctx context.Context, episodes int) ([]EpisodeResult, error) {
	log := r.Logger
	if log == nil {
		log = slog.Default()
	}

	results := make([]EpisodeResult, 0, episodes)
	for ep := 1; ep <= episodes; ep++ {
		res, err := r.episode(ctx, ep)
		if err != nil {
			return results, err
		}
		log.Info("episode over", "episode", ep, "steps", res.Steps, "total_reward", res.TotalReward)
		r.Bridge.ObserveEpisode(res.TotalReward)
		if r.OnEpisode != nil {
			r.OnEpisode(res)
		}
		results = append(results, res)
	}
	return results, nil
}

func (r *Runner) episode(ctx context.Context, ep int) (EpisodeResult, error) {
	metrics.ResetAll(r.Metrics)
	if rs, ok := r.Controller.(controllers.Resetter); ok {
		rs.Reset()
	}

	obs, err := r.Env.Reset(ctx)
	if err != nil {
		return EpisodeResult{}, err
	}

	res := EpisodeResult{Episode: ep}
	start := time.Now()
	for {
		select {
		case <-ctx.Done():
			return res, ctx.Err()
		default:
		}

		t := time.Since(start).Seconds()
		action := r.Controller.Compute(obs, t)
		step, err := r.Env.Step(ctx, action)
		if err != nil {
			return res, err
		}

		for _, m := range r.Metrics {
			m.Observe(step.Observation, action, step.Reward)
		}
		res.Steps++
		res.TotalReward += step.Reward
		done := step.Done || (r.MaxSteps > 0 && res.Steps >= r.MaxSteps)

		if r.OnStep != nil {
			r.OnStep(StepRecord{
				Episode:     ep,
				Step:        res.Steps,
				Time:        t,
				Observation: step.Observation,
				Action:      action,
				Reward:      step.Reward,
				Done:        done,
			})
		}

		obs = step.Observation
		if done {
			break
		}
	}

	res.Duration = time.Since(start)
	res.Metrics = metrics.Collect(r.Metrics)
	return res, nil
}
