package sampler

import (
	"errors"
	"fmt"

	"github.com/benchscale/benchscale/internal/database"
	"github.com/benchscale/benchscale/internal/workload"
)

// Mode is an execution mode.
type Mode = database.Mode

const (
	Compiled    = database.ModeCompiled
	Interpreted = database.ModeInterpreted
)

var (
	// ErrUsage marks caller misconfiguration detected before any process
	// is spawned.
	ErrUsage        = errors.New("usage error")
	ErrNoModes      = fmt.Errorf("%w: no execution mode requested", ErrUsage)
	ErrCompiledOnly = fmt.Errorf("%w: workload cannot run in interpreted mode", ErrUsage)
)

// ModeSet is the set of modes a measurement runs in.
type ModeSet struct {
	Compiled    bool
	Interpreted bool
}

// Both requests compiled and interpreted measurements.
var Both = ModeSet{Compiled: true, Interpreted: true}

// Only returns a set containing just m.
func Only(m Mode) ModeSet {
	return ModeSet{Compiled: m == Compiled, Interpreted: m == Interpreted}
}

// Has reports whether m is in the set.
func (s ModeSet) Has(m Mode) bool {
	switch m {
	case Compiled:
		return s.Compiled
	case Interpreted:
		return s.Interpreted
	}
	return false
}

// Modes lists the requested modes in execution order within an iteration:
// compiled first, then interpreted.
func (s ModeSet) Modes() []Mode {
	var out []Mode
	if s.Compiled {
		out = append(out, Compiled)
	}
	if s.Interpreted {
		out = append(out, Interpreted)
	}
	return out
}

// Validate checks that the set can be run for w.
func (s ModeSet) Validate(w workload.Workload) error {
	if !s.Compiled && !s.Interpreted {
		return ErrNoModes
	}
	if s.Interpreted && w.CompiledOnly {
		return fmt.Errorf("%w (%s)", ErrCompiledOnly, w.Name)
	}
	return nil
}
