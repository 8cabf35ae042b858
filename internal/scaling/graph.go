// Package scaling converts runtimes measured on one hardware/runtime
// configuration into equivalent runtimes on another.
//
// Calibration factors form a directed graph per workload whose nodes are
// (hardware, runtime version) pairs. An edge old -> new with factor f means
// new_runtime = old_runtime / f. The graph must have exactly one current
// node: the configuration every other node is eventually converted to.
package scaling

import (
	"errors"
	"fmt"
	"strings"

	"github.com/benchscale/benchscale/internal/database"
)

var (
	ErrNoCurrentConfig = errors.New("could not determine a unique current configuration")
	ErrNoPath          = errors.New("no scaling path")
	ErrCycle           = errors.New("cycle in scaling data")
)

// Node is a configuration in the scaling graph.
type Node struct {
	Hardware       string `json:"hardware"`
	RuntimeVersion string `json:"runtime_version"`
}

func (n Node) String() string {
	return n.Hardware + " / " + n.RuntimeVersion
}

// OldNode returns the source configuration of an edge.
func OldNode(it database.ScalingItem) Node {
	return Node{Hardware: it.OldHardware, RuntimeVersion: it.OldRuntimeVersion}
}

// NewNode returns the target configuration of an edge.
func NewNode(it database.ScalingItem) Node {
	return Node{Hardware: it.NewHardware, RuntimeVersion: it.NewRuntimeVersion}
}

// Matches reports whether a measurement was taken in this configuration.
// Calibration data names runtime versions as "X.Y" while measurements
// carry full versions, so "3.10" matches "3.10" and "3.10.4" but not "3.1".
func (n Node) Matches(item database.DataItem) bool {
	return item.HardwareID == n.Hardware && VersionMatches(n.RuntimeVersion, item.RuntimeVersion)
}

// VersionMatches reports whether full equals short or extends it with
// further dot-separated components.
func VersionMatches(short, full string) bool {
	return full == short || strings.HasPrefix(full, short+".")
}

// CurrentNode returns the unique node that is the target of some edge and
// the source of no edge leading to a different node.
func CurrentNode(edges []database.ScalingItem) (Node, error) {
	leadsElsewhere := make(map[Node]bool)
	for _, e := range edges {
		if OldNode(e) != NewNode(e) {
			leadsElsewhere[OldNode(e)] = true
		}
	}

	var found []Node
	seen := make(map[Node]bool)
	for _, e := range edges {
		n := NewNode(e)
		if seen[n] || leadsElsewhere[n] {
			continue
		}
		seen[n] = true
		found = append(found, n)
	}
	if len(found) != 1 {
		return Node{}, fmt.Errorf("%w: %d candidates", ErrNoCurrentConfig, len(found))
	}
	return found[0], nil
}

// Infer returns an edge from -> to. A direct edge is returned unchanged;
// otherwise one is composed along a path, multiplying factors. Nodes on
// the current path are tracked, so cyclic data fails with ErrCycle instead
// of looping.
func Infer(edges []database.ScalingItem, from, to Node) (database.ScalingItem, error) {
	st := &searchState{onPath: map[Node]bool{}, dead: map[Node]bool{}}
	factor, ok := search(edges, from, to, st)
	if !ok {
		if st.cycle {
			return database.ScalingItem{}, fmt.Errorf("%w: from %s", ErrCycle, from)
		}
		return database.ScalingItem{}, fmt.Errorf("%w: %s -> %s", ErrNoPath, from, to)
	}
	if direct, ok := directEdge(edges, from, to); ok {
		return direct, nil
	}
	return database.ScalingItem{
		Workload:          workloadOf(edges),
		Factor:            factor,
		OldHardware:       from.Hardware,
		OldRuntimeVersion: from.RuntimeVersion,
		NewHardware:       to.Hardware,
		NewRuntimeVersion: to.RuntimeVersion,
	}, nil
}

func search(edges []database.ScalingItem, from, to Node, st *searchState) (float64, bool) {
	if d, ok := directEdge(edges, from, to); ok {
		return d.Factor, true
	}
	st.onPath[from] = true
	defer delete(st.onPath, from)
	for _, e := range edges {
		if OldNode(e) != from {
			continue
		}
		next := NewNode(e)
		switch {
		case next == from, st.dead[next]:
			continue
		case st.onPath[next]:
			st.cycle = true
			continue
		}
		if f, ok := search(edges, next, to, st); ok {
			return e.Factor * f, true
		}
	}
	st.dead[from] = true
	return 0, false
}

// searchState tracks the nodes on the current path, for cycle detection,
// and nodes already known to have no path to the target.
type searchState struct {
	onPath map[Node]bool
	dead   map[Node]bool
	cycle  bool
}

func directEdge(edges []database.ScalingItem, from, to Node) (database.ScalingItem, bool) {
	for _, e := range edges {
		if OldNode(e) == from && NewNode(e) == to {
			return e, true
		}
	}
	return database.ScalingItem{}, false
}

func workloadOf(edges []database.ScalingItem) string {
	if len(edges) == 0 {
		return ""
	}
	return edges[0].Workload
}

// InferMissingEdges returns edges followed by one synthesized edge for
// every source node without a direct edge to the current node. The input
// is not modified.
func InferMissingEdges(edges []database.ScalingItem) ([]database.ScalingItem, error) {
	current, err := CurrentNode(edges)
	if err != nil {
		return nil, err
	}

	out := make([]database.ScalingItem, len(edges), len(edges)+4)
	copy(out, edges)

	done := make(map[Node]bool)
	for _, e := range edges {
		old := OldNode(e)
		if old == current || done[old] {
			continue
		}
		done[old] = true
		if _, ok := directEdge(edges, old, current); ok {
			continue
		}
		inferred, err := Infer(edges, old, current)
		if err != nil {
			return nil, err
		}
		out = append(out, inferred)
	}
	return out, nil
}
