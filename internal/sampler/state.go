package sampler

import "fmt"

// State is a phase of one measurement.
type State string

const (
	StateNotStarted  State = "NOT_STARTED"
	StatePreparing   State = "PREPARING"
	StateWarmingUp   State = "WARMING_UP"
	StateSampling    State = "SAMPLING"
	StateStripping   State = "STRIPPING"
	StateSummarizing State = "SUMMARIZING"
	StateDone        State = "DONE"
	StateFailed      State = "FAILED"
)

var transitions = map[State][]State{
	StateNotStarted:  {StatePreparing},
	StatePreparing:   {StateWarmingUp, StateFailed},
	StateWarmingUp:   {StateSampling, StateFailed},
	StateSampling:    {StateStripping, StateSummarizing, StateFailed},
	StateStripping:   {StateSummarizing},
	StateSummarizing: {StateDone},
}

// CanTransition reports whether a measurement may move from one state to
// another. DONE and FAILED are terminal.
func CanTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

type stateMachine struct {
	state    State
	observer func(State)
}

func (m *stateMachine) enter(to State) {
	if !CanTransition(m.state, to) {
		panic(fmt.Sprintf("sampler: invalid state transition %s -> %s", m.state, to))
	}
	m.state = to
	if m.observer != nil {
		m.observer(to)
	}
}
