package ode

import "errors"

var (
	ErrInvalidTableau   = errors.New("ode: invalid butcher tableau")
	ErrInvalidTolerance = errors.New("ode: tolerances must be positive")
	ErrInvalidStepLimit = errors.New("ode: step limits must be finite and not negative")
	ErrInvalidInterval  = errors.New("ode: end of interval precedes start")
	ErrStepTooSmall     = errors.New("ode: step size fell below minimum")
	ErrMaxSteps         = errors.New("ode: maximum number of steps exceeded")
	ErrNonFinite        = errors.New("ode: state is not finite")
)
