package airthermo

import "math"

const (
	DefaultGamma       = 1.4
	DefaultGasConstant = 287.0 // J/(kg·K), dry air

	zeroCelsius = 273.15
)

// Temperature evaluates T = Rg·p/ρ. It does not guard ρ = 0.
func Temperature(p, rho, rg float64) float64 {
	return rg * p / rho
}

// NozzleVelocity returns the exit velocity sqrt((p - pAtm)/ρ). The result is
// NaN when p < pAtm and Inf or NaN when ρ = 0; callers own the domain check.
func NozzleVelocity(p, pAtm, rho float64) float64 {
	return math.Sqrt((p - pAtm) / rho)
}

// DensityRate is dρ/dt for air leaving a tank of volume v through exitArea.
func DensityRate(rho, exitVelocity, exitArea, v float64) float64 {
	return -rho * exitVelocity * exitArea / v
}

// PressureRate is dp/dt of the isentropic blowdown model.
func PressureRate(p, pAtm, exitVelocity, exitArea, v, gamma float64) float64 {
	return 0.5 * ((gamma-1)*p - (gamma+1)*pAtm) * exitVelocity * exitArea / v
}

// DensityFromTemperature gives the initial air density for a tank filled to
// pressure p at tCelsius.
func DensityFromTemperature(p, tCelsius, rg float64) float64 {
	return p / (rg * (tCelsius + zeroCelsius))
}

// ExitArea is the cross section of a circular nozzle throat.
func ExitArea(diameter float64) float64 {
	return math.Pi * diameter * diameter / 4
}

// Thrust of the air phase, ρ·v²·A.
func Thrust(rho, exitVelocity, exitArea float64) float64 {
	return rho * exitVelocity * exitVelocity * exitArea
}
