package tank

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/Agrid-Dev/airtank/internal/airthermo"
	"github.com/Agrid-Dev/airtank/internal/ode"
)

func assertError(t *testing.T, err error, expected error) {
	t.Helper()
	if !errors.Is(err, expected) {
		t.Fatalf("expected %v, got %v", expected, err)
	}
}

func assertEqual[T comparable](t *testing.T, name string, got, want T) {
	t.Helper()
	if got != want {
		t.Fatalf("%s: got %v, want %v", name, got, want)
	}
}

func newTestParams(opts ...func(*Params)) Params {
	p := Params{
		Volume:          2e-3,
		NozzleDiameter:  9e-3,
		AmbientPressure: 101325,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func newTestInitial() InitialConditions {
	return InitialConditions{Pressure: 500000, Temperature: 20}
}

func newTestTank(t *testing.T, model *airthermo.Model) *Tank {
	t.Helper()
	tk, err := New(newTestParams(), newTestInitial(), model)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return tk
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		initial InitialConditions
		want    error
	}{
		{"Zero volume", newTestParams(func(p *Params) { p.Volume = 0 }), newTestInitial(), ErrInvalidVolume},
		{"NaN volume", newTestParams(func(p *Params) { p.Volume = math.NaN() }), newTestInitial(), ErrInvalidVolume},
		{"Negative nozzle", newTestParams(func(p *Params) { p.NozzleDiameter = -1 }), newTestInitial(), ErrInvalidNozzleDiameter},
		{"Zero ambient", newTestParams(func(p *Params) { p.AmbientPressure = 0 }), newTestInitial(), ErrInvalidAmbientPressure},
		{"Zero fill pressure", newTestParams(), InitialConditions{Pressure: 0, Temperature: 20}, ErrInvalidFillPressure},
		{"Below absolute zero", newTestParams(), InitialConditions{Pressure: 500000, Temperature: -300}, ErrInvalidFillTemperature},
		{"Fill above vent limit", newTestParams(), InitialConditions{Pressure: 1e6, Temperature: 20}, ErrFillAboveModelLimit},
		{"Valid", newTestParams(), newTestInitial(), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.params, tt.initial, nil)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			assertError(t, err, tt.want)
		})
	}
}

func TestNewInitialSnapshot(t *testing.T) {
	tk := newTestTank(t, nil)
	s := tk.Get()

	rho := airthermo.DensityFromTemperature(500000, 20, airthermo.DefaultGasConstant)
	assertEqual(t, "pressure", s.Pressure, 500000.0)
	assertEqual(t, "density", s.Density, rho)
	assertEqual(t, "temperature", s.Temperature, airthermo.Temperature(500000, rho, airthermo.DefaultGasConstant))
	assertEqual(t, "air mass", s.AirMass, rho*2e-3)
	assertEqual(t, "valve", s.ValveOpen, false)
	assertEqual(t, "phase", s.Phase(), PhaseClosed)
	assertEqual(t, "elapsed", s.Elapsed, time.Duration(0))
}

func TestStepClosedValveIsNoop(t *testing.T) {
	tk := newTestTank(t, nil)
	before := tk.Get()
	if err := tk.Step(10 * time.Millisecond); err != nil {
		t.Fatalf("Step() failed: %v", err)
	}
	assertEqual(t, "snapshot", tk.Get(), before)
}

func TestStepVenting(t *testing.T) {
	tk := newTestTank(t, nil)
	tk.SetValveOpen(true)
	before := tk.Get()

	if err := tk.Step(10 * time.Millisecond); err != nil {
		t.Fatalf("Step() failed: %v", err)
	}
	s := tk.Get()

	wantVelocity := airthermo.NozzleVelocity(before.Pressure, before.AmbientPressure, before.Density)
	assertEqual(t, "exit velocity", s.ExitVelocity, wantVelocity)
	assertEqual(t, "elapsed", s.Elapsed, 10*time.Millisecond)
	assertEqual(t, "phase", s.Phase(), PhaseVenting)
	if s.Pressure >= before.Pressure {
		t.Errorf("pressure should drop, got %v from %v", s.Pressure, before.Pressure)
	}
	if s.Density >= before.Density {
		t.Errorf("density should drop, got %v from %v", s.Density, before.Density)
	}
	if s.Thrust <= 0 {
		t.Errorf("thrust should be positive, got %v", s.Thrust)
	}
	assertEqual(t, "air mass", s.AirMass, s.Density*2e-3)
}

func TestStepUntilExhausted(t *testing.T) {
	tk := newTestTank(t, nil)
	tk.SetValveOpen(true)

	prev := tk.Get()
	iterations := 0
	maxIterations := 2000
	for !tk.Get().Exhausted && iterations < maxIterations {
		if err := tk.Step(10 * time.Millisecond); err != nil {
			t.Fatalf("Step() failed at iteration %d: %v", iterations, err)
		}
		s := tk.Get()
		if s.AirMass > prev.AirMass {
			t.Fatalf("air mass should not increase, have %v > %v (iteration %d)", s.AirMass, prev.AirMass, iterations)
		}
		prev = s
		iterations++
	}
	if iterations == maxIterations {
		t.Fatalf("tank did not exhaust within %d iterations", maxIterations)
	}

	s := tk.Get()
	assertEqual(t, "phase", s.Phase(), PhaseExhausted)
	assertEqual(t, "pressure", s.Pressure, s.AmbientPressure)
	assertEqual(t, "thrust", s.Thrust, 0.0)
	assertEqual(t, "exit velocity", s.ExitVelocity, 0.0)

	elapsed := s.Elapsed
	if err := tk.Step(10 * time.Millisecond); err != nil {
		t.Fatalf("Step() on exhausted tank failed: %v", err)
	}
	assertEqual(t, "elapsed after exhaustion", tk.Get().Elapsed, elapsed)
}

func TestStepInvalidDuration(t *testing.T) {
	tk := newTestTank(t, nil)
	assertError(t, tk.Step(0), ErrInvalidStep)
	assertError(t, tk.Step(-time.Second), ErrInvalidStep)
}

func TestStepSolverFailureKeepsState(t *testing.T) {
	cfg := ode.DefaultConfig()
	cfg.FirstStep = 1e-6
	cfg.MaxStep = 1e-6
	cfg.MaxSteps = 2
	solver, err := ode.New(ode.DormandPrince(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	model, err := airthermo.New(airthermo.WithSolver(solver))
	if err != nil {
		t.Fatal(err)
	}

	tk := newTestTank(t, model)
	tk.SetValveOpen(true)
	before := tk.Get()

	err = tk.Step(10 * time.Millisecond)
	assertError(t, err, airthermo.ErrIntegrationFailed)
	assertEqual(t, "snapshot", tk.Get(), before)
}

func TestSetAmbientPressure(t *testing.T) {
	tk := newTestTank(t, nil)
	assertError(t, tk.SetAmbientPressure(0), ErrInvalidAmbientPressure)
	assertError(t, tk.SetAmbientPressure(math.NaN()), ErrInvalidAmbientPressure)

	if err := tk.SetAmbientPressure(600000); err != nil {
		t.Fatal(err)
	}
	assertEqual(t, "exhausted", tk.Get().Exhausted, true)

	if err := tk.SetAmbientPressure(90000); err != nil {
		t.Fatal(err)
	}
	s := tk.Get()
	assertEqual(t, "ambient", s.AmbientPressure, 90000.0)
	assertEqual(t, "exhausted", s.Exhausted, false)
}

func TestRefill(t *testing.T) {
	tk := newTestTank(t, nil)
	tk.SetValveOpen(true)
	for i := 0; i < 10; i++ {
		if err := tk.Step(10 * time.Millisecond); err != nil {
			t.Fatal(err)
		}
	}

	assertError(t, tk.Refill(-1), ErrInvalidFillPressure)

	if err := tk.Refill(400000); err != nil {
		t.Fatal(err)
	}
	s := tk.Get()
	assertEqual(t, "pressure", s.Pressure, 400000.0)
	assertEqual(t, "density", s.Density, airthermo.DensityFromTemperature(400000, 20, airthermo.DefaultGasConstant))
	assertEqual(t, "elapsed", s.Elapsed, time.Duration(0))
	assertEqual(t, "valve", s.ValveOpen, true)
	assertEqual(t, "thrust", s.Thrust, 0.0)
}

func TestVentLimit(t *testing.T) {
	tk := newTestTank(t, nil)
	if got := tk.VentLimit(101325); math.Abs(got-607950) > 1e-6 {
		t.Fatalf("VentLimit(101325) = %v, want 607950", got)
	}

	model, err := airthermo.New(airthermo.WithGamma(1.2))
	if err != nil {
		t.Fatal(err)
	}
	tk = newTestTank(t, model)
	if got := tk.VentLimit(100000); math.Abs(got-1.1e6) > 1e-6 {
		t.Fatalf("VentLimit(100000) with gamma 1.2 = %v, want 1.1e6", got)
	}
}

func TestRefillAboveVentLimit(t *testing.T) {
	tk := newTestTank(t, nil)
	tk.SetValveOpen(true)
	before := tk.Get()

	assertError(t, tk.Refill(1e6), ErrFillAboveModelLimit)
	assertError(t, tk.Refill(tk.VentLimit(before.AmbientPressure)), ErrFillAboveModelLimit)
	assertEqual(t, "snapshot", tk.Get(), before)

	// Just under the limit the tank still blows down to ambient.
	if err := tk.Refill(600000); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5000 && !tk.Get().Exhausted; i++ {
		if err := tk.Step(10 * time.Millisecond); err != nil {
			t.Fatalf("Step() failed at iteration %d: %v", i, err)
		}
	}
	assertEqual(t, "exhausted", tk.Get().Exhausted, true)
}

func TestSetAmbientPressureBelowVentLimit(t *testing.T) {
	tk := newTestTank(t, nil)
	before := tk.Get()

	// 500 kPa needs an ambient above 500000/6.
	assertError(t, tk.SetAmbientPressure(80000), ErrFillAboveModelLimit)
	assertEqual(t, "snapshot", tk.Get(), before)

	if err := tk.SetAmbientPressure(85000); err != nil {
		t.Fatal(err)
	}
	assertEqual(t, "ambient", tk.Get().AmbientPressure, 85000.0)
}

func TestCloseValveStopsFlow(t *testing.T) {
	tk := newTestTank(t, nil)
	tk.SetValveOpen(true)
	if err := tk.Step(10 * time.Millisecond); err != nil {
		t.Fatal(err)
	}
	tk.SetValveOpen(false)
	s := tk.Get()
	assertEqual(t, "thrust", s.Thrust, 0.0)
	assertEqual(t, "exit velocity", s.ExitVelocity, 0.0)
	assertEqual(t, "phase", s.Phase(), PhaseClosed)
}

func TestRunStopsOnCancel(t *testing.T) {
	tk := newTestTank(t, nil)
	tk.SetValveOpen(true)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := tk.Run(ctx, time.Millisecond, time.Millisecond)
	assertError(t, err, context.DeadlineExceeded)
	if tk.Get().Elapsed == 0 {
		t.Fatal("expected at least one step while running")
	}
}

func TestRunClosesValveOnStepFailure(t *testing.T) {
	cfg := ode.DefaultConfig()
	cfg.FirstStep = 1e-6
	cfg.MaxStep = 1e-6
	cfg.MaxSteps = 2
	solver, err := ode.New(ode.DormandPrince(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	model, err := airthermo.New(airthermo.WithSolver(solver))
	if err != nil {
		t.Fatal(err)
	}

	tk := newTestTank(t, model)
	tk.SetValveOpen(true)
	before := tk.Get()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err = tk.Run(ctx, time.Millisecond, 10*time.Millisecond)
	assertError(t, err, context.DeadlineExceeded)

	s := tk.Get()
	assertEqual(t, "valve", s.ValveOpen, false)
	assertEqual(t, "pressure", s.Pressure, before.Pressure)
	assertEqual(t, "elapsed", s.Elapsed, time.Duration(0))
}

func TestRunInvalidInterval(t *testing.T) {
	tk := newTestTank(t, nil)
	assertError(t, tk.Run(context.Background(), 0, time.Millisecond), ErrInvalidStep)
}

func TestPhaseString_Table(t *testing.T) {
	cases := []struct {
		name string
		in   Phase
		want string
	}{
		{"unknown (zero)", PhaseUnknown, "unknown"},
		{"closed", PhaseClosed, "closed"},
		{"venting", PhaseVenting, "venting"},
		{"exhausted", PhaseExhausted, "exhausted"},
		{"unknown (out of range)", Phase(999), "unknown"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.in.String(); got != tc.want {
				t.Fatalf("Phase(%d).String()=%q want %q", tc.in, got, tc.want)
			}
			if got := tc.in.Valid(); got != (tc.want != "unknown") {
				t.Fatalf("Phase(%d).Valid()=%v", tc.in, got)
			}
		})
	}
}
