package main

import (
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/san-kum/simbridge/internal/integrators"
	"github.com/san-kum/simbridge/internal/models"
	"github.com/san-kum/simbridge/internal/simserver"
)

var (
	simRate     float64
	simDt       float64
	integrator  string
	simAltitude float64
	simSpeed    float64
)

func newSimCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "serve a local glider simulation on the socket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rate") {
				cfg.Sim.Rate = simRate
			}
			if cmd.Flags().Changed("dt") {
				cfg.Sim.Dt = simDt
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			integ, err := integrators.ByName(integrator)
			if err != nil {
				return err
			}
			srv, err := simserver.New(
				simserver.WithLogger(slog.Default()),
				simserver.WithRate(cfg.Sim.Rate),
				simserver.WithStep(cfg.Sim.Dt),
				simserver.WithIntegrator(integ),
				simserver.WithInitialState(models.GliderState(simAltitude, simSpeed, -4, -2)),
			)
			if err != nil {
				return err
			}

			slog.Info("simulation listening", "endpoint", cfg.Endpoint, "rate", cfg.Sim.Rate, "integrator", integrator)
			return srv.ListenAndServe(cmd.Context(), cfg.Endpoint)
		},
	}
	cmd.Flags().Float64Var(&simRate, "rate", simserver.DefaultRate, "state frames per second")
	cmd.Flags().Float64Var(&simDt, "dt", simserver.DefaultDt, "integration step")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator ("+strings.Join(integrators.Names(), "|")+")")
	cmd.Flags().Float64Var(&simAltitude, "altitude", 1500, "starting altitude in metres")
	cmd.Flags().Float64Var(&simSpeed, "speed", 38, "starting true airspeed in m/s")
	return cmd
}
