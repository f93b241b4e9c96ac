package ode

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Func evaluates dy/dt at (t, y) into dydt.
type Func func(t float64, y, dydt []float64)

const (
	safety    = 0.9
	minFactor = 0.2
	maxFactor = 10.0
)

type Config struct {
	AbsTol    float64
	RelTol    float64
	FirstStep float64 // 0 selects the first step automatically
	MinStep   float64
	MaxStep   float64 // 0 for unbounded
	MaxSteps  int     // accepted plus rejected steps; 0 for unbounded
}

func DefaultConfig() Config {
	return Config{
		AbsTol:   1e-6,
		RelTol:   1e-3,
		MaxSteps: 100000,
	}
}

func (cfg *Config) Validate() error {
	for _, tol := range []float64{cfg.AbsTol, cfg.RelTol} {
		if !(tol > 0) || math.IsInf(tol, 0) {
			return ErrInvalidTolerance
		}
	}
	for _, h := range []float64{cfg.FirstStep, cfg.MinStep, cfg.MaxStep} {
		if !(h >= 0) || math.IsInf(h, 0) {
			return ErrInvalidStepLimit
		}
	}
	if cfg.MaxSteps < 0 {
		return ErrInvalidStepLimit
	}
	return nil
}

type Stats struct {
	Steps       int
	Rejected    int
	Evaluations int
}

type Solver struct {
	tab *Tableau
	cfg Config
}

func New(tab *Tableau, cfg Config) (*Solver, error) {
	if tab == nil {
		return nil, ErrInvalidTableau
	}
	if err := tab.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Solver{tab: tab, cfg: cfg}, nil
}

// Default returns a Dormand-Prince solver with DefaultConfig.
func Default() *Solver {
	return &Solver{tab: DormandPrince(), cfg: DefaultConfig()}
}

func (s *Solver) Method() string {
	return s.tab.Name
}

func (s *Solver) Config() Config {
	return s.cfg
}

// Solve integrates y in place from t0 to t1. The solver keeps no state
// between calls, so a single Solver may be shared across goroutines.
func (s *Solver) Solve(f Func, y []float64, t0, t1 float64) (Stats, error) {
	var st Stats
	if t1 < t0 || math.IsNaN(t0) || math.IsNaN(t1) {
		return st, ErrInvalidInterval
	}
	if !finite(y) {
		return st, ErrNonFinite
	}
	if t1 == t0 || len(y) == 0 {
		return st, nil
	}

	n := len(y)
	stages := s.tab.Stages()
	k := make([][]float64, stages)
	for i := range k {
		k[i] = make([]float64, n)
	}
	tmp := make([]float64, n)
	ynew := make([]float64, n)
	errv := make([]float64, n)

	eval := func(t float64, y, dydt []float64) {
		f(t, y, dydt)
		st.Evaluations++
	}

	t := t0
	eval(t, y, k[0])
	if !finite(k[0]) {
		return st, fmt.Errorf("%w: derivative at t=%g", ErrNonFinite, t)
	}
	h := s.initialStep(eval, t, t1-t, y, k[0])
	order := float64(s.tab.Order)

	for t < t1 {
		if s.cfg.MaxSteps > 0 && st.Steps+st.Rejected >= s.cfg.MaxSteps {
			return st, fmt.Errorf("%w: %d steps at t=%g", ErrMaxSteps, s.cfg.MaxSteps, t)
		}
		last := false
		if t+h >= t1 {
			h = t1 - t
			last = true
		}

		for i := 1; i < stages; i++ {
			copy(tmp, y)
			for j, a := range s.tab.A[i] {
				if a != 0 {
					floats.AddScaled(tmp, h*a, k[j])
				}
			}
			eval(t+s.tab.C[i]*h, tmp, k[i])
		}
		copy(ynew, y)
		for i, b := range s.tab.B {
			if b != 0 {
				floats.AddScaled(ynew, h*b, k[i])
			}
		}
		if !finite(ynew) {
			return st, fmt.Errorf("%w: at t=%g", ErrNonFinite, t+h)
		}

		if !s.tab.Adaptive() {
			copy(y, ynew)
			t = advance(t, h, t1, last)
			st.Steps++
			if t < t1 {
				eval(t, y, k[0])
			}
			continue
		}

		for i := range errv {
			errv[i] = 0
		}
		for i, e := range s.tab.E {
			if e != 0 {
				floats.AddScaled(errv, h*e, k[i])
			}
		}
		errNorm := s.errorNorm(errv, y, ynew, tmp)
		if math.IsNaN(errNorm) {
			return st, fmt.Errorf("%w: error estimate at t=%g", ErrNonFinite, t)
		}

		if errNorm <= 1 {
			copy(y, ynew)
			t = advance(t, h, t1, last)
			st.Steps++
			factor := maxFactor
			if errNorm > 0 {
				factor = math.Min(maxFactor, safety*math.Pow(errNorm, -1/order))
			}
			h = s.clampStep(h * factor)
			if t < t1 {
				eval(t, y, k[0])
			}
			continue
		}

		st.Rejected++
		h *= math.Max(minFactor, safety*math.Pow(errNorm, -1/order))
		if h < s.minStep(t) {
			return st, fmt.Errorf("%w: h=%g at t=%g", ErrStepTooSmall, h, t)
		}
	}
	return st, nil
}

// SolveScalar integrates a one-dimensional problem and returns y(t1).
func (s *Solver) SolveScalar(f func(t, y float64) float64, y0, t0, t1 float64) (float64, Stats, error) {
	y := []float64{y0}
	st, err := s.Solve(func(t float64, y, dydt []float64) {
		dydt[0] = f(t, y[0])
	}, y, t0, t1)
	if err != nil {
		return y0, st, err
	}
	return y[0], st, nil
}

func advance(t, h, t1 float64, last bool) float64 {
	if last {
		return t1
	}
	return t + h
}

// initialStep follows Hairer, Norsett & Wanner, "Solving Ordinary
// Differential Equations I", sec. II.4.
func (s *Solver) initialStep(eval Func, t0, span float64, y, f0 []float64) float64 {
	if s.cfg.FirstStep > 0 {
		return math.Min(s.clampStep(s.cfg.FirstStep), span)
	}
	if !s.tab.Adaptive() {
		return s.clampStep(span)
	}

	n := len(y)
	scale := make([]float64, n)
	for i, v := range y {
		scale[i] = s.cfg.AbsTol + math.Abs(v)*s.cfg.RelTol
	}
	buf := make([]float64, n)

	d0 := rms(floats.DivTo(buf, y, scale))
	d1 := rms(floats.DivTo(buf, f0, scale))
	h0 := 1e-6
	if d0 >= 1e-5 && d1 >= 1e-5 {
		h0 = 0.01 * d0 / d1
	}
	h0 = math.Min(h0, span)

	y1 := floats.AddScaledTo(make([]float64, n), y, h0, f0)
	f1 := make([]float64, n)
	eval(t0+h0, y1, f1)
	floats.Sub(f1, f0)
	d2 := rms(floats.DivTo(buf, f1, scale)) / h0

	var h1 float64
	if d1 <= 1e-15 && d2 <= 1e-15 {
		h1 = math.Max(1e-6, h0*1e-3)
	} else {
		h1 = math.Pow(0.01/math.Max(d1, d2), 1/float64(s.tab.Order))
	}
	return s.clampStep(math.Min(math.Min(100*h0, h1), span))
}

func (s *Solver) errorNorm(errv, y, ynew, buf []float64) float64 {
	for i := range errv {
		sc := s.cfg.AbsTol + math.Max(math.Abs(y[i]), math.Abs(ynew[i]))*s.cfg.RelTol
		buf[i] = errv[i] / sc
	}
	return rms(buf)
}

func (s *Solver) clampStep(h float64) float64 {
	if s.cfg.MaxStep > 0 && h > s.cfg.MaxStep {
		return s.cfg.MaxStep
	}
	return h
}

func (s *Solver) minStep(t float64) float64 {
	return math.Max(s.cfg.MinStep, 10*(math.Nextafter(t, math.Inf(1))-t))
}

func rms(v []float64) float64 {
	return floats.Norm(v, 2) / math.Sqrt(float64(len(v)))
}

func finite(v []float64) bool {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return false
		}
	}
	return true
}
