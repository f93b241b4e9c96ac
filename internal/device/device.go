package device

import "github.com/Agrid-Dev/airtank/internal/tank"

type Device struct {
	ID   string
	Tank *tank.Tank
}

func New(id string, t *tank.Tank) *Device {
	return &Device{ID: id, Tank: t}
}
