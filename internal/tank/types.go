package tank

// Phase is an integer enum derived from a snapshot.
type Phase int

const (
	PhaseUnknown Phase = iota
	PhaseClosed
	PhaseVenting
	PhaseExhausted
)

func (p Phase) Valid() bool {
	return p == PhaseClosed || p == PhaseVenting || p == PhaseExhausted
}

func (p Phase) String() string {
	switch p {
	case PhaseClosed:
		return "closed"
	case PhaseVenting:
		return "venting"
	case PhaseExhausted:
		return "exhausted"
	default:
		return "unknown"
	}
}
