package main

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/simbridge/internal/config"
	"github.com/san-kum/simbridge/internal/env"
	"github.com/san-kum/simbridge/internal/storage"
)

var (
	plotSlots   int
	plotEpisode int
	exportOut   string
	force       bool
)

func openStore(cmd *cobra.Command) (*storage.Store, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return storage.New(cfg.DataDir), nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			runs, err := st.List()
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs found")
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTASK\tCTRL\tTIME\tEPISODES\tBEST REWARD")
			for _, run := range runs {
				best := "-"
				if len(run.Episodes) > 0 {
					b := run.Episodes[0].TotalReward
					for _, ep := range run.Episodes[1:] {
						b = max(b, ep.TotalReward)
					}
					best = fmt.Sprintf("%.3f", b)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					run.ID[:8],
					run.Task,
					run.Controller,
					run.Timestamp.Format("2006-01-02 15:04:05"),
					len(run.Episodes),
					best,
				)
			}
			return w.Flush()
		},
	}
}

func newPlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot rewards and observations of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			id, err := st.Resolve(args[0])
			if err != nil {
				return err
			}
			meta, err := st.Load(id)
			if err != nil {
				return err
			}
			steps, err := st.LoadSteps(id)
			if err != nil {
				return err
			}
			if len(steps) == 0 {
				return fmt.Errorf("no data to plot")
			}

			fmt.Printf("run: %s\n", meta.ID)
			fmt.Printf("task: %s  controller: %s\n", meta.Task, meta.Controller)
			fmt.Printf("steps: %d\n\n", len(steps))

			if len(meta.Episodes) > 1 {
				totals := make([]float64, len(meta.Episodes))
				for i, ep := range meta.Episodes {
					totals[i] = ep.TotalReward
				}
				plot(totals, "total reward per episode")
			}

			if plotEpisode > 0 {
				filtered := steps[:0]
				for _, s := range steps {
					if s.Episode == plotEpisode {
						filtered = append(filtered, s)
					}
				}
				if len(filtered) == 0 {
					return fmt.Errorf("run has no episode %d", plotEpisode)
				}
				steps = filtered
			}

			rewards := make([]float64, len(steps))
			actions := make([]float64, len(steps))
			for i, s := range steps {
				rewards[i] = s.Reward
				if len(s.Action) > 0 {
					actions[i] = s.Action[0]
				}
			}
			plot(rewards, "reward")
			plot(actions, "yoke_pitch_ratio")

			n := min(plotSlots, len(meta.ObservationLabels))
			for slot := 0; slot < n; slot++ {
				data := make([]float64, len(steps))
				for i, s := range steps {
					if slot < len(s.Observation) {
						data[i] = s.Observation[slot]
					}
				}
				plot(data, meta.ObservationLabels[slot])
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&plotSlots, "slots", 3, "number of observation slots to plot")
	cmd.Flags().IntVar(&plotEpisode, "episode", 0, "only plot this episode")
	return cmd
}

func plot(data []float64, caption string) {
	if len(data) < 2 {
		return
	}
	fmt.Println(asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	))
	fmt.Println()
}

func newExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export a run with all of its steps as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd)
			if err != nil {
				return err
			}
			id, err := st.Resolve(args[0])
			if err != nil {
				return err
			}
			if exportOut != "" {
				if err := st.ExportJSONFile(exportOut, id); err != nil {
					return err
				}
				fmt.Printf("exported to %s\n", exportOut)
				return nil
			}
			return st.ExportJSON(os.Stdout, id)
		},
	}
	cmd.Flags().StringVarP(&exportOut, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets [task]",
		Short: "list available presets for a task",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tasks := env.TaskNames()
			if len(args) == 1 {
				tasks = args
			}
			for _, t := range tasks {
				presets := config.ListPresets(t)
				if len(presets) == 0 {
					fmt.Printf("no presets for task: %s\n", t)
					continue
				}
				fmt.Printf("presets for %s:\n", t)
				for _, p := range presets {
					cfg := config.GetPreset(t, p)
					fmt.Printf("  %-10s controller=%s\n", p, cfg.Controller)
				}
			}
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config [path]",
		Short: "write the effective configuration as yaml",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if _, err := os.Stat(args[0]); err == nil && !force {
				return fmt.Errorf("%s exists (use --force to overwrite)", args[0])
			}
			if err := config.Save(args[0], cfg); err != nil {
				return err
			}
			fmt.Printf("wrote %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

func joinNames(names []string) string {
	return strings.Join(names, "|")
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
