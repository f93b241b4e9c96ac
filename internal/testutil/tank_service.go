package testutil

import (
	"time"

	"github.com/Agrid-Dev/airtank/internal/tank"
)

// FakeTankService is a reusable fake implementing ports.TankService.
// Put ONLY what multiple test packages need here.
type FakeTankService struct {
	S tank.Snapshot

	SetValveOpenCalled bool
	SetValveOpenArg    bool

	SetAmbientPressureCalled bool
	SetAmbientPressureArg    float64
	SetAmbientPressureErr    error

	RefillCalled bool
	RefillArg    float64
	RefillErr    error
}

func NewFakeTankService() *FakeTankService {
	return &FakeTankService{
		S: tank.Snapshot{
			ValveOpen:       true,
			AmbientPressure: 101325,
			Pressure:        450000,
			Density:         5.35,
			Temperature:     6917960,
			ExitVelocity:    257.3,
			Thrust:          22.4,
			AirMass:         0.0107,
			Elapsed:         1500 * time.Millisecond,
		},
	}
}

func (f *FakeTankService) Get() tank.Snapshot { return f.S }

func (f *FakeTankService) SetValveOpen(b bool) {
	f.SetValveOpenCalled = true
	f.SetValveOpenArg = b
	f.S.ValveOpen = b
}

func (f *FakeTankService) SetAmbientPressure(p float64) error {
	f.SetAmbientPressureCalled = true
	f.SetAmbientPressureArg = p
	if f.SetAmbientPressureErr != nil {
		return f.SetAmbientPressureErr
	}
	f.S.AmbientPressure = p
	return nil
}

func (f *FakeTankService) Refill(p float64) error {
	f.RefillCalled = true
	f.RefillArg = p
	if f.RefillErr != nil {
		return f.RefillErr
	}
	f.S.Pressure = p
	f.S.Elapsed = 0
	return nil
}
