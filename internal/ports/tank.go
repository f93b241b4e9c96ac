package ports

import "github.com/Agrid-Dev/airtank/internal/tank"

// TankService is the control-plane port used by controllers (HTTP/MQTT/Modbus).
type TankService interface {
	Get() tank.Snapshot
	SetValveOpen(bool)
	SetAmbientPressure(float64) error
	Refill(pressure float64) error
}
