// Package airthermo models the compressed air inside a rigid tank venting
// through a nozzle. All functions are pure; the caller owns the tank state and
// feeds each result back in on the next step.
//
// By default UpdateDensity and UpdatePressure integrate the coupled equations,
// with the rate evaluated at the current integrated value. The legacy model
// held the rate at the step's starting value, integrating a constant over the
// step; WithFrozenRates (config key tank.frozen_rates) restores that form and
// is the one to use when comparing against traces produced by it.
package airthermo

import (
	"fmt"
	"math"
	"time"

	"github.com/Agrid-Dev/airtank/internal/ode"
)

type Model struct {
	gamma  float64
	rg     float64
	solver *ode.Solver
	frozen bool
}

type Option func(*Model)

func WithGamma(gamma float64) Option {
	return func(m *Model) { m.gamma = gamma }
}

func WithGasConstant(rg float64) Option {
	return func(m *Model) { m.rg = rg }
}

// WithSolver replaces the default Dormand-Prince solver, e.g. to tighten
// tolerances.
func WithSolver(s *ode.Solver) Option {
	return func(m *Model) { m.solver = s }
}

// WithFrozenRates evaluates each right-hand side with the value at the start of
// the step instead of the running solution, so every step is a linear
// extrapolation of the initial rate.
func WithFrozenRates() Option {
	return func(m *Model) { m.frozen = true }
}

func New(opts ...Option) (*Model, error) {
	m := &Model{
		gamma: DefaultGamma,
		rg:    DefaultGasConstant,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !(m.gamma > 1) || math.IsInf(m.gamma, 0) {
		return nil, ErrInvalidGamma
	}
	if !(m.rg > 0) || math.IsInf(m.rg, 0) {
		return nil, ErrInvalidGasConstant
	}
	if m.solver == nil {
		m.solver = ode.Default()
	}
	return m, nil
}

var defaultModel = &Model{
	gamma:  DefaultGamma,
	rg:     DefaultGasConstant,
	solver: ode.Default(),
}

// Default returns the model used by the package-level functions.
func Default() *Model {
	return defaultModel
}

func (m *Model) Gamma() float64       { return m.gamma }
func (m *Model) GasConstant() float64 { return m.rg }
func (m *Model) Frozen() bool         { return m.frozen }

// UpdateDensity integrates dρ/dt = -ρ·vₙ·Aₑ/V over [0, step] from rho.
func (m *Model) UpdateDensity(rho, exitVelocity, exitArea, volume float64, step time.Duration) (float64, error) {
	if err := checkInputs(volume, step, rho, exitVelocity, exitArea); err != nil {
		return rho, fmt.Errorf("update density: %w", err)
	}
	rate := func(_, y float64) float64 {
		if m.frozen {
			y = rho
		}
		return DensityRate(y, exitVelocity, exitArea, volume)
	}
	v, err := m.integrate(rate, rho, step)
	if err != nil {
		return rho, fmt.Errorf("update density: %w", err)
	}
	return v, nil
}

// UpdatePressure integrates dp/dt = ½((γ-1)p - (γ+1)pAtm)·vₙ·Aₑ/V over
// [0, step] from p.
func (m *Model) UpdatePressure(pAtm, exitArea, exitVelocity, volume, p float64, step time.Duration) (float64, error) {
	if err := checkInputs(volume, step, pAtm, exitArea, exitVelocity, p); err != nil {
		return p, fmt.Errorf("update pressure: %w", err)
	}
	rate := func(_, y float64) float64 {
		if m.frozen {
			y = p
		}
		return PressureRate(y, pAtm, exitVelocity, exitArea, volume, m.gamma)
	}
	v, err := m.integrate(rate, p, step)
	if err != nil {
		return p, fmt.Errorf("update pressure: %w", err)
	}
	return v, nil
}

func (m *Model) Temperature(p, rho float64) float64 {
	return Temperature(p, rho, m.rg)
}

func (m *Model) integrate(rate func(t, y float64) float64, y0 float64, step time.Duration) (float64, error) {
	if step == 0 {
		return y0, nil
	}
	y, _, err := m.solver.SolveScalar(rate, y0, 0, step.Seconds())
	if err != nil {
		return y0, fmt.Errorf("%w: %w", ErrIntegrationFailed, err)
	}
	return y, nil
}

func checkInputs(volume float64, step time.Duration, values ...float64) error {
	if step < 0 {
		return ErrNegativeStep
	}
	for _, v := range append(values, volume) {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrNonFiniteInput
		}
	}
	if volume <= 0 {
		return ErrInvalidVolume
	}
	return nil
}

// UpdateDensity advances the tank density with the default model.
func UpdateDensity(rho, exitVelocity, exitArea, volume float64, step time.Duration) (float64, error) {
	return defaultModel.UpdateDensity(rho, exitVelocity, exitArea, volume, step)
}

// UpdatePressure advances the tank pressure with the default model.
func UpdatePressure(pAtm, exitArea, exitVelocity, volume, p float64, step time.Duration) (float64, error) {
	return defaultModel.UpdatePressure(pAtm, exitArea, exitVelocity, volume, p, step)
}
