package airthermo

import "errors"

var (
	ErrInvalidGamma       = errors.New("specific heat ratio must be greater than one")
	ErrInvalidGasConstant = errors.New("gas constant must be positive")
	ErrInvalidVolume      = errors.New("tank volume must be positive")
	ErrNegativeStep       = errors.New("integration step must not be negative")
	ErrNonFiniteInput     = errors.New("input is not a finite number")
	ErrIntegrationFailed  = errors.New("integration failed")
)
