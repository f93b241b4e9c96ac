package app

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Agrid-Dev/airtank/internal/trace"
)

func newBlowdownCmd(opts *rootOptions) *cobra.Command {
	var (
		out      string
		step     time.Duration
		maxSteps int
	)

	cmd := &cobra.Command{
		Use:   "blowdown",
		Short: "Vent a freshly filled tank to ambient and write the evolution as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := LoadConfig(opts.configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("step") {
				if step <= 0 {
					return fmt.Errorf("--step must be positive, got %v", step)
				}
				cfg.Simulation.Step = step
			}
			if cmd.Flags().Changed("max-steps") {
				cfg.Simulation.StepBudget = maxSteps
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}
			return blowdown(cfg, w)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "-", "CSV output path, - for stdout")
	cmd.Flags().DurationVar(&step, "step", 0, "integration step (overrides simulation.step)")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "step budget (overrides simulation.step_budget)")
	return cmd
}

func blowdown(cfg Config, w io.Writer) error {
	t, err := cfg.NewTank()
	if err != nil {
		return err
	}
	samples, err := trace.Record(t, cfg.Simulation.Step, cfg.Simulation.StepBudget)
	if err != nil && !errors.Is(err, trace.ErrStepBudget) {
		return err
	}
	if werr := trace.WriteCSV(w, samples); werr != nil {
		return werr
	}
	if err != nil {
		return fmt.Errorf("blowdown incomplete after %d steps: %w", cfg.Simulation.StepBudget, err)
	}

	sum := trace.Summarize(samples)
	log.WithFields(log.Fields{
		"device_id":    cfg.DeviceID,
		"elapsed":      sum.Duration,
		"steps":        sum.Steps,
		"peak_thrust":  sum.PeakThrust,
		"impulse":      sum.Impulse,
		"air_expelled": sum.AirExpelled,
	}).Info("blowdown complete")
	return nil
}
