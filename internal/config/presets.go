package config

import "sort"

// Presets holds named starting configurations per task.
var Presets = map[string]map[string]*Config{
	"glide_angle": {
		"random": preset("glide_angle", func(c *Config) {
			c.Controller = "random"
		}),
		"pid": preset("glide_angle", func(c *Config) {
			c.Controller = "pid"
			c.AwaitStep = true
			c.ControllerParams = ControllerConfig{Kp: 0.05, Ki: 0.01, Kd: 0.0, Target: -6, Index: 0}
		}),
		"strict": preset("glide_angle", func(c *Config) {
			c.Controller = "random"
			c.BadEpisode = BadEpisodeConfig{Enabled: true, Limit: -8, Window: 50, Penalty: -3000}
		}),
	},
	"speed": {
		"random": preset("speed", func(c *Config) {
			c.Controller = "random"
		}),
		"pid": preset("speed", func(c *Config) {
			c.Controller = "pid"
			c.AwaitStep = true
			c.ControllerParams = ControllerConfig{Kp: -0.02, Ki: -0.002, Kd: 0.0, Target: 68 * 0.51444444444, Index: 0}
		}),
		"buffered": preset("speed", func(c *Config) {
			c.Controller = "random"
			c.ObservationBuffer = 10
		}),
	},
}

func preset(task string, mutate func(*Config)) *Config {
	cfg := DefaultConfig()
	cfg.Task = task
	mutate(cfg)
	return cfg
}

func GetPreset(task, name string) *Config {
	taskPresets, ok := Presets[task]
	if !ok {
		return nil
	}
	cfg, ok := taskPresets[name]
	if !ok {
		return nil
	}
	return cfg
}

func ListPresets(task string) []string {
	taskPresets, ok := Presets[task]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(taskPresets))
	for name := range taskPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
