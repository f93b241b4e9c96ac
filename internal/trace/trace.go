// Package trace records a tank blowdown step by step and writes it as CSV.
package trace

import (
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/Agrid-Dev/airtank/internal/tank"
)

var ErrStepBudget = errors.New("tank not exhausted within step budget")

type Sample struct {
	Step            int     `csv:"step"`
	Time            float64 `csv:"time_s"`
	Phase           string  `csv:"phase"`
	Pressure        float64 `csv:"pressure_pa"`
	AmbientPressure float64 `csv:"ambient_pressure_pa"`
	Density         float64 `csv:"density_kg_m3"`
	Temperature     float64 `csv:"temperature"`
	ExitVelocity    float64 `csv:"exit_velocity_m_s"`
	Thrust          float64 `csv:"thrust_n"`
	AirMass         float64 `csv:"air_mass_kg"`
}

func sampleOf(step int, s tank.Snapshot) Sample {
	return Sample{
		Step:            step,
		Time:            s.Elapsed.Seconds(),
		Phase:           s.Phase().String(),
		Pressure:        s.Pressure,
		AmbientPressure: s.AmbientPressure,
		Density:         s.Density,
		Temperature:     s.Temperature,
		ExitVelocity:    s.ExitVelocity,
		Thrust:          s.Thrust,
		AirMass:         s.AirMass,
	}
}

// Record opens the valve and steps t by dt until it is exhausted. Samples
// holds the state after every step, preceded by the initial state. When
// maxSteps is reached first the samples gathered so far are returned with
// ErrStepBudget.
func Record(t *tank.Tank, dt time.Duration, maxSteps int) ([]Sample, error) {
	if maxSteps <= 0 {
		return nil, fmt.Errorf("max steps must be positive, got %d", maxSteps)
	}
	t.SetValveOpen(true)

	samples := []Sample{sampleOf(0, t.Get())}
	for i := 1; i <= maxSteps; i++ {
		if t.Get().Exhausted {
			return samples, nil
		}
		if err := t.Step(dt); err != nil {
			return samples, fmt.Errorf("step %d: %w", i, err)
		}
		samples = append(samples, sampleOf(i, t.Get()))
	}
	if t.Get().Exhausted {
		return samples, nil
	}
	return samples, ErrStepBudget
}

func WriteCSV(w io.Writer, samples []Sample) error {
	if err := gocsv.Marshal(samples, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// Summary condenses a recording. Each sample's thrust is the thrust of the
// step that ended at it, so Impulse weights it by that step's duration. The
// step that exhausts the tank reports zero thrust and adds nothing.
type Summary struct {
	Duration    time.Duration
	Steps       int
	PeakThrust  float64
	Impulse     float64 // N·s
	AirExpelled float64 // kg
}

func Summarize(samples []Sample) Summary {
	var sum Summary
	if len(samples) == 0 {
		return sum
	}
	first, last := samples[0], samples[len(samples)-1]
	sum.Steps = last.Step
	sum.Duration = time.Duration(math.Round(last.Time * float64(time.Second)))
	sum.AirExpelled = first.AirMass - last.AirMass
	for i := 1; i < len(samples); i++ {
		s := samples[i]
		if s.Thrust > sum.PeakThrust {
			sum.PeakThrust = s.Thrust
		}
		sum.Impulse += s.Thrust * (s.Time - samples[i-1].Time)
	}
	return sum
}
