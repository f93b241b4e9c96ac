package tank

import (
	"math"

	"github.com/Agrid-Dev/airtank/internal/airthermo"
)

type Params struct {
	Volume          float64 // m³
	NozzleDiameter  float64 // m
	AmbientPressure float64 // Pa
}

func (params *Params) Validate() error {
	if !(params.Volume > 0) {
		return ErrInvalidVolume
	}
	if !(params.NozzleDiameter > 0) {
		return ErrInvalidNozzleDiameter
	}
	if !(params.AmbientPressure > 0) {
		return ErrInvalidAmbientPressure
	}
	return nil
}

func (params *Params) ExitArea() float64 {
	return airthermo.ExitArea(params.NozzleDiameter)
}

type InitialConditions struct {
	Pressure    float64 // Pa, absolute
	Temperature float64 // °C
}

func (ic *InitialConditions) Validate() error {
	if !(ic.Pressure > 0) || math.IsInf(ic.Pressure, 0) {
		return ErrInvalidFillPressure
	}
	if !(ic.Temperature > -273.15) || math.IsInf(ic.Temperature, 0) {
		return ErrInvalidFillTemperature
	}
	return nil
}
