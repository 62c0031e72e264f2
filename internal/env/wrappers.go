package env

import (
	"context"
	"log/slog"
	"time"

	"github.com/eapache/queue"
	"golang.org/x/time/rate"

	"github.com/san-kum/simbridge/internal/state"
)

// TimeLimit ends an episode after MaxSteps steps or MaxDuration wall-clock
// time, whichever comes first. A zero limit is disabled.
type TimeLimit struct {
	env         Environment
	MaxSteps    int
	MaxDuration time.Duration

	steps     int
	startedAt time.Time
	now       func() time.Time
}

func NewTimeLimit(env Environment, maxSteps int, maxDuration time.Duration) *TimeLimit {
	return &TimeLimit{env: env, MaxSteps: maxSteps, MaxDuration: maxDuration, now: time.Now}
}

func (w *TimeLimit) Reset(ctx context.Context) (state.Vector, error) {
	w.startedAt = w.now()
	w.steps = 0
	return w.env.Reset(ctx)
}

func (w *TimeLimit) Step(ctx context.Context, action state.Vector) (StepResult, error) {
	if w.startedAt.IsZero() {
		return StepResult{}, ErrNotReset
	}
	res, err := w.env.Step(ctx, action)
	if err != nil {
		return res, err
	}
	w.steps++
	if w.pastLimit() {
		res.Done = true
	}
	return res, nil
}

func (w *TimeLimit) pastLimit() bool {
	if w.MaxSteps > 0 && w.steps >= w.MaxSteps {
		return true
	}
	return w.MaxDuration > 0 && w.now().Sub(w.startedAt) >= w.MaxDuration
}

// TimedActions issues at most perSecond steps per second. A reset re-arms
// the limiter so the first action after it goes out immediately.
type TimedActions struct {
	env     Environment
	limit   rate.Limit
	limiter *rate.Limiter
}

func NewTimedActions(env Environment, perSecond float64) *TimedActions {
	limit := rate.Limit(perSecond)
	return &TimedActions{env: env, limit: limit, limiter: rate.NewLimiter(limit, 1)}
}

func (w *TimedActions) Reset(ctx context.Context) (state.Vector, error) {
	w.limiter = rate.NewLimiter(w.limit, 1)
	return w.env.Reset(ctx)
}

func (w *TimedActions) Step(ctx context.Context, action state.Vector) (StepResult, error) {
	if err := w.limiter.Wait(ctx); err != nil {
		return StepResult{}, err
	}
	return w.env.Step(ctx, action)
}

// meanBuffer is a moving average over the last capacity values.
type meanBuffer struct {
	capacity int
	q        *queue.Queue
	sum      float64
}

func newMeanBuffer(capacity int) *meanBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &meanBuffer{capacity: capacity, q: queue.New()}
}

func (b *meanBuffer) add(v float64) {
	if b.q.Length() == b.capacity {
		b.sum -= b.q.Remove().(float64)
	}
	b.q.Add(v)
	b.sum += v
}

func (b *meanBuffer) mean() float64 {
	if b.q.Length() == 0 {
		return 0
	}
	return b.sum / float64(b.q.Length())
}

func (b *meanBuffer) clear() {
	b.q = queue.New()
	b.sum = 0
}

// EndOfBadEpisodes ends an episode early once the mean reward over the last
// window steps drops below limit, adding penalty to that final reward.
type EndOfBadEpisodes struct {
	env     Environment
	limit   float64
	window  int
	penalty float64
	rewards *meanBuffer
	log     *slog.Logger
}

func NewEndOfBadEpisodes(env Environment, limit float64, window int, penalty float64, log *slog.Logger) *EndOfBadEpisodes {
	if log == nil {
		log = slog.Default()
	}
	return &EndOfBadEpisodes{
		env:     env,
		limit:   limit,
		window:  window,
		penalty: penalty,
		rewards: newMeanBuffer(window),
		log:     log,
	}
}

func (w *EndOfBadEpisodes) Reset(ctx context.Context) (state.Vector, error) {
	w.rewards.clear()
	return w.env.Reset(ctx)
}

func (w *EndOfBadEpisodes) Step(ctx context.Context, action state.Vector) (StepResult, error) {
	res, err := w.env.Step(ctx, action)
	if err != nil {
		return res, err
	}
	w.rewards.add(res.Reward)
	if mean := w.rewards.mean(); mean < w.limit {
		w.log.Info("ending bad episode", "mean_reward", mean, "window", w.window, "limit", w.limit)
		res.Done = true
		res.Reward += w.penalty
	}
	return res, nil
}

// ObservationBuffer replaces each observation with the concatenation of the
// last n observations, oldest first. After a reset the history is zero.
type ObservationBuffer struct {
	env     Environment
	n       int
	history *queue.Queue
}

func NewObservationBuffer(env Environment, n int) *ObservationBuffer {
	if n < 1 {
		n = 1
	}
	return &ObservationBuffer{env: env, n: n, history: queue.New()}
}

func (w *ObservationBuffer) Reset(ctx context.Context) (state.Vector, error) {
	obs, err := w.env.Reset(ctx)
	if err != nil {
		return nil, err
	}
	w.history = queue.New()
	for i := 0; i < w.n; i++ {
		w.history.Add(make(state.Vector, len(obs)))
	}
	return w.push(obs), nil
}

func (w *ObservationBuffer) Step(ctx context.Context, action state.Vector) (StepResult, error) {
	res, err := w.env.Step(ctx, action)
	if err != nil {
		return res, err
	}
	res.Observation = w.push(res.Observation)
	return res, nil
}

func (w *ObservationBuffer) push(obs state.Vector) state.Vector {
	if w.history.Length() == w.n {
		w.history.Remove()
	}
	w.history.Add(obs.Clone())

	out := make(state.Vector, 0, w.n*len(obs))
	for i := 0; i < w.history.Length(); i++ {
		out = append(out, w.history.Get(i).(state.Vector)...)
	}
	return out
}
