package tank

import "errors"

var (
	ErrInvalidVolume          = errors.New("tank volume must be positive")
	ErrInvalidNozzleDiameter  = errors.New("nozzle diameter must be positive")
	ErrInvalidAmbientPressure = errors.New("ambient pressure must be positive")
	ErrInvalidFillPressure    = errors.New("fill pressure must be positive")
	ErrInvalidFillTemperature = errors.New("fill temperature must be above absolute zero")
	ErrInvalidStep            = errors.New("step must be positive")
	ErrFillAboveModelLimit    = errors.New("fill pressure at or above the venting limit for this ambient pressure")
)
