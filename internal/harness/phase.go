package harness

import "fmt"

// Phase is the harness state for one RunAll call.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDispatching
	PhaseJoining
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "IDLE"
	case PhaseDispatching:
		return "DISPATCHING"
	case PhaseJoining:
		return "JOINING"
	case PhaseDone:
		return "DONE"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// machine tracks the phase of a run. It is only touched by the coordinating
// goroutine.
type machine struct {
	phase Phase
	batch int
	on    func(Phase, int)
}

// transition moves from -> to, failing if the current phase is not from or
// the edge is not allowed.
func (m *machine) transition(from, to Phase) error {
	if m.phase != from {
		return &HarnessError{Kind: ErrInvalidPhase, Msg: fmt.Sprintf("expected %s, got %s", from, m.phase)}
	}
	if !allowed(from, to) {
		return &HarnessError{Kind: ErrInvalidPhase, Msg: fmt.Sprintf("%s -> %s", from, to)}
	}
	if from == PhaseJoining && to == PhaseDispatching {
		m.batch++
	}
	m.phase = to
	if m.on != nil {
		m.on(to, m.batch)
	}
	return nil
}

func allowed(from, to Phase) bool {
	switch from {
	case PhaseIdle:
		return to == PhaseDispatching || to == PhaseDone
	case PhaseDispatching:
		return to == PhaseJoining
	case PhaseJoining:
		return to == PhaseDispatching || to == PhaseDone
	default:
		return false
	}
}
