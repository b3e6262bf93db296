// Package island implements the archipelago driver: one generational
// round per deme, a migration barrier between rounds, and (for the
// process-parallel variant) a supervised worker per deme.
package island

import (
	"fmt"
	"strconv"

	"github.com/katalvlaran/lvlath/core"
)

// demeVertexID renders a deme index as the string vertex id the graph
// library requires.
func demeVertexID(i int) string { return strconv.Itoa(i) }

// BuildRingTopology returns a directed graph over n deme indices where
// deme d emigrates to deme (d+1) mod n, the spec's default migration
// topology. It is the fallback used whenever a caller does not supply
// its own topology builder.
func BuildRingTopology(n int) (*core.Graph, error) {
	if n <= 0 {
		return nil, fmt.Errorf("island: ring topology requires at least one deme, got %d", n)
	}
	g := core.NewGraph(core.WithDirected(true))
	for i := 0; i < n; i++ {
		if err := g.AddVertex(demeVertexID(i)); err != nil {
			return nil, fmt.Errorf("island: add vertex %d: %w", i, err)
		}
	}
	if n == 1 {
		return g, nil
	}
	for i := 0; i < n; i++ {
		next := (i + 1) % n
		if _, err := g.AddEdge(demeVertexID(i), demeVertexID(next), 1); err != nil {
			return nil, fmt.Errorf("island: link deme %d -> %d: %w", i, next, err)
		}
	}
	return g, nil
}

// BuildStarTopology returns a directed graph where deme 0 is the hub:
// every other deme both sends to and receives from deme 0. Offered as
// a second built-in topology alongside the ring, since the graph
// abstraction is only worth adding if more than one shape uses it.
func BuildStarTopology(n int) (*core.Graph, error) {
	if n <= 0 {
		return nil, fmt.Errorf("island: star topology requires at least one deme, got %d", n)
	}
	g := core.NewGraph(core.WithDirected(true))
	for i := 0; i < n; i++ {
		if err := g.AddVertex(demeVertexID(i)); err != nil {
			return nil, fmt.Errorf("island: add vertex %d: %w", i, err)
		}
	}
	for i := 1; i < n; i++ {
		if _, err := g.AddEdge(demeVertexID(0), demeVertexID(i), 1); err != nil {
			return nil, fmt.Errorf("island: link hub -> %d: %w", i, err)
		}
		if _, err := g.AddEdge(demeVertexID(i), demeVertexID(0), 1); err != nil {
			return nil, fmt.Errorf("island: link %d -> hub: %w", i, err)
		}
	}
	return g, nil
}

// EmigrationTargets returns the deme indices deme d sends emigrants
// to, per topology.
func EmigrationTargets(topology *core.Graph, d int) ([]int, error) {
	edges, err := topology.Neighbors(demeVertexID(d))
	if err != nil {
		return nil, fmt.Errorf("island: neighbors of deme %d: %w", d, err)
	}
	targets := make([]int, 0, len(edges))
	for _, e := range edges {
		to, err := strconv.Atoi(e.To)
		if err != nil {
			return nil, fmt.Errorf("island: malformed topology vertex id %q: %w", e.To, err)
		}
		targets = append(targets, to)
	}
	return targets, nil
}
