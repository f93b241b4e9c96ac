package tank

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Agrid-Dev/airtank/internal/airthermo"
)

type Snapshot struct {
	ValveOpen       bool
	AmbientPressure float64
	Pressure        float64
	Density         float64
	Temperature     float64
	ExitVelocity    float64
	Thrust          float64
	AirMass         float64
	Elapsed         time.Duration
	Exhausted       bool
}

func (s Snapshot) Phase() Phase {
	switch {
	case s.Exhausted:
		return PhaseExhausted
	case !s.ValveOpen:
		return PhaseClosed
	default:
		return PhaseVenting
	}
}

// Tank owns the air state between steps. The physical model never sees the
// tank; it only receives the current values and returns the next ones.
type Tank struct {
	mu     sync.RWMutex
	s      Snapshot
	params Params
	fill   InitialConditions
	model  *airthermo.Model
}

// New returns a tank filled to initial with its valve closed. A nil model
// selects airthermo.Default().
func New(params Params, initial InitialConditions, model *airthermo.Model) (*Tank, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	if model == nil {
		model = airthermo.Default()
	}
	t := &Tank{params: params, fill: initial, model: model}
	if err := t.checkVentable(initial.Pressure, params.AmbientPressure); err != nil {
		return nil, err
	}
	t.s = t.filled(initial, params.AmbientPressure)
	return t, nil
}

// VentLimit is the tank pressure at which dp/dt of the pressure relation
// turns non-negative for the given ambient pressure: (γ+1)/(γ-1)·ambient.
// A tank filled at or above it never blows down.
func (t *Tank) VentLimit(ambient float64) float64 {
	g := t.model.Gamma()
	return (g + 1) / (g - 1) * ambient
}

func (t *Tank) checkVentable(pressure, ambient float64) error {
	if limit := t.VentLimit(ambient); pressure >= limit {
		return fmt.Errorf("%w: %.0f Pa >= %.0f Pa", ErrFillAboveModelLimit, pressure, limit)
	}
	return nil
}

func (t *Tank) filled(ic InitialConditions, ambient float64) Snapshot {
	rho := airthermo.DensityFromTemperature(ic.Pressure, ic.Temperature, t.model.GasConstant())
	return Snapshot{
		AmbientPressure: ambient,
		Pressure:        ic.Pressure,
		Density:         rho,
		Temperature:     t.model.Temperature(ic.Pressure, rho),
		AirMass:         rho * t.params.Volume,
		Exhausted:       ic.Pressure <= ambient,
	}
}

func (t *Tank) Params() Params {
	return t.params
}

func (t *Tank) Get() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.s
}

func (t *Tank) SetValveOpen(open bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.s.ValveOpen = open
	if !open {
		t.s.ExitVelocity = 0
		t.s.Thrust = 0
	}
}

func (t *Tank) SetAmbientPressure(p float64) error {
	if !(p > 0) {
		return ErrInvalidAmbientPressure
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkVentable(t.s.Pressure, p); err != nil {
		return err
	}
	t.s.AmbientPressure = p
	t.s.Exhausted = t.s.Pressure <= p
	return nil
}

// Refill resets the tank to pressure at the configured fill temperature. The
// valve position and ambient pressure are kept.
func (t *Tank) Refill(pressure float64) error {
	ic := InitialConditions{Pressure: pressure, Temperature: t.fill.Temperature}
	if err := ic.Validate(); err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkVentable(pressure, t.s.AmbientPressure); err != nil {
		return err
	}
	valve := t.s.ValveOpen
	t.s = t.filled(ic, t.s.AmbientPressure)
	t.s.ValveOpen = valve
	t.fill = ic
	return nil
}

// Step advances the tank by dt. A closed valve or an exhausted tank makes it a
// no-op. On error the state is left untouched.
func (t *Tank) Step(dt time.Duration) error {
	if dt <= 0 {
		return ErrInvalidStep
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.s.ValveOpen || t.s.Exhausted {
		return nil
	}
	next, err := t.advance(t.s, dt)
	if err != nil {
		return err
	}
	t.s = next
	return nil
}

func (t *Tank) advance(s Snapshot, dt time.Duration) (Snapshot, error) {
	if s.Pressure <= s.AmbientPressure {
		return t.exhaust(s), nil
	}
	area := t.params.ExitArea()
	volume := t.params.Volume

	vn := airthermo.NozzleVelocity(s.Pressure, s.AmbientPressure, s.Density)
	rho, err := t.model.UpdateDensity(s.Density, vn, area, volume, dt)
	if err != nil {
		return s, fmt.Errorf("tank step at %v: %w", s.Elapsed, err)
	}
	p, err := t.model.UpdatePressure(s.AmbientPressure, area, vn, volume, s.Pressure, dt)
	if err != nil {
		return s, fmt.Errorf("tank step at %v: %w", s.Elapsed, err)
	}

	s.Density = rho
	s.Pressure = p
	s.ExitVelocity = vn
	s.Thrust = airthermo.Thrust(rho, vn, area)
	s.AirMass = rho * volume
	s.Temperature = t.model.Temperature(p, rho)
	s.Elapsed += dt
	if p <= s.AmbientPressure {
		return t.exhaust(s), nil
	}
	return s, nil
}

func (t *Tank) exhaust(s Snapshot) Snapshot {
	s.Pressure = s.AmbientPressure
	s.ExitVelocity = 0
	s.Thrust = 0
	s.Temperature = t.model.Temperature(s.Pressure, s.Density)
	s.Exhausted = true
	return s
}

// Run steps the tank by dt on every tick of interval until ctx is done. A
// failed step is logged and closes the valve, leaving the state as it was
// before that step; opening the valve again resumes stepping.
func (t *Tank) Run(ctx context.Context, interval, dt time.Duration) error {
	if interval <= 0 || dt <= 0 {
		return ErrInvalidStep
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			before := t.Get().Exhausted
			if err := t.Step(dt); err != nil {
				log.WithError(err).Error("tank step failed, closing valve")
				t.SetValveOpen(false)
				continue
			}
			if s := t.Get(); s.Exhausted && !before {
				log.WithFields(log.Fields{
					"elapsed":  s.Elapsed,
					"air_mass": s.AirMass,
				}).Info("tank exhausted")
			}
		}
	}
}
