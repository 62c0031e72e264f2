package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/simbridge/internal/controllers"
)

const (
	DefaultEndpoint        = "/tmp/eee_AutoViewer"
	DefaultTask            = "glide_angle"
	DefaultAwaitTimeout    = time.Second
	DefaultStepsPerSecond  = 10.0
	DefaultMaxEpisodeSteps = 250
	DefaultEpisodes        = 10
	DefaultMaxFrameBytes   = 1 << 20
	DefaultDialTimeout     = 5 * time.Second
	DefaultWriteTimeout    = time.Second
	DefaultDataDir         = "runs"
	DefaultSimRate         = 20.0
	DefaultSimDt           = 0.01
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	Endpoint         string           `yaml:"endpoint"`
	Task             string           `yaml:"task"`
	Controller       string           `yaml:"controller"`
	ControllerParams ControllerConfig `yaml:"controller_params"`
	Episodes         int              `yaml:"episodes"`
	Seed             int64            `yaml:"seed"`

	AwaitTimeout time.Duration `yaml:"await_timeout"`
	// ResetSettleUpdates is how many telemetry updates a reset waits for.
	// Zero uses the task default.
	ResetSettleUpdates int  `yaml:"reset_settle_updates"`
	AwaitStep          bool `yaml:"await_step"`

	StepsPerSecond     float64          `yaml:"steps_per_second"`
	MaxEpisodeSteps    int              `yaml:"max_episode_steps"`
	MaxEpisodeDuration time.Duration    `yaml:"max_episode_duration"`
	BadEpisode         BadEpisodeConfig `yaml:"bad_episode"`
	ObservationBuffer  int              `yaml:"observation_buffer"`

	MaxFrameBytes int           `yaml:"max_frame_bytes"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`

	MetricsAddr string       `yaml:"metrics_addr"`
	Influx      InfluxConfig `yaml:"influx"`
	DataDir     string       `yaml:"data_dir"`
	Sim         SimConfig    `yaml:"sim"`
}

type ControllerConfig struct {
	Kp            float64 `yaml:"kp"`
	Ki            float64 `yaml:"ki"`
	Kd            float64 `yaml:"kd"`
	Target        float64 `yaml:"target"`
	Index         int     `yaml:"index"`
	IntegralLimit float64 `yaml:"integral_limit"`
}

// BadEpisodeConfig ends an episode early when the mean reward over Window
// steps falls below Limit.
type BadEpisodeConfig struct {
	Enabled bool    `yaml:"enabled"`
	Limit   float64 `yaml:"limit"`
	Window  int     `yaml:"window"`
	Penalty float64 `yaml:"penalty"`
}

type InfluxConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

func (c InfluxConfig) Enabled() bool { return c.URL != "" }

// SimConfig drives the local simulation peer.
type SimConfig struct {
	Rate float64 `yaml:"rate"`
	Dt   float64 `yaml:"dt"`
}

func DefaultConfig() *Config {
	return &Config{
		Endpoint:     DefaultEndpoint,
		Task:         DefaultTask,
		Controller:   "random",
		Episodes:     DefaultEpisodes,
		AwaitTimeout: DefaultAwaitTimeout,
		ControllerParams: ControllerConfig{
			Kp:     0.05,
			Ki:     0.01,
			Target: -6,

			IntegralLimit: 0.5,
		},
		StepsPerSecond:  DefaultStepsPerSecond,
		MaxEpisodeSteps: DefaultMaxEpisodeSteps,
		BadEpisode: BadEpisodeConfig{
			Limit:   -80,
			Window:  50,
			Penalty: -3000,
		},
		MaxFrameBytes: DefaultMaxFrameBytes,
		DialTimeout:   DefaultDialTimeout,
		WriteTimeout:  DefaultWriteTimeout,
		Influx: InfluxConfig{
			Measurement: "plane_state",
		},
		DataDir: DefaultDataDir,
		Sim: SimConfig{
			Rate: DefaultSimRate,
			Dt:   DefaultSimDt,
		},
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings no component can run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.Endpoint != "", "endpoint must be set")
	check(c.Task == "speed" || c.Task == "glide_angle", "unknown task %q", c.Task)
	check(c.AwaitTimeout > 0, "await_timeout must be positive, got %s", c.AwaitTimeout)
	check(c.ResetSettleUpdates >= 0, "reset_settle_updates must not be negative")
	check(c.StepsPerSecond > 0, "steps_per_second must be positive, got %g", c.StepsPerSecond)
	check(c.Episodes > 0, "episodes must be positive, got %d", c.Episodes)
	check(c.MaxEpisodeSteps >= 0, "max_episode_steps must not be negative")
	check(c.MaxFrameBytes > 0, "max_frame_bytes must be positive")
	check(c.DialTimeout > 0, "dial_timeout must be positive")
	check(c.WriteTimeout >= 0, "write_timeout must not be negative")
	check(c.ObservationBuffer >= 0, "observation_buffer must not be negative")
	check(c.ControllerParams.IntegralLimit >= 0, "controller_params.integral_limit must not be negative")
	check(c.Sim.Rate > 0 && c.Sim.Dt > 0, "sim rate and dt must be positive")
	if c.BadEpisode.Enabled {
		check(c.BadEpisode.Window > 0, "bad_episode.window must be positive")
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
}

func (c *Config) ControllerSettings() controllers.Params {
	return controllers.Params{
		Kp:     c.ControllerParams.Kp,
		Ki:     c.ControllerParams.Ki,
		Kd:     c.ControllerParams.Kd,
		Target: c.ControllerParams.Target,
		Index:  c.ControllerParams.Index,

		IntegralLimit: c.ControllerParams.IntegralLimit,
	}
}
