// Package sequence derives a deterministic linear playback order from the
// directed connection graph of a board. The graph is not guaranteed to be
// well formed: orphans, branches, self-loops and cycles are all legal and
// must degrade to a partial ordering rather than an error.
package sequence

import (
	"storyboard/domain/core/entities"
	"storyboard/domain/core/valueobjects"
)

// Result is the derived sequence for one board topology.
type Result struct {
	// Ordinals assigns every connection exactly one positive ordinal,
	// 1-based, in traversal order.
	Ordinals map[valueobjects.ConnectionID]int

	// Playback is the flattened linear frame order for sequential playback.
	// Branches are flattened into one track; unreachable frames are appended
	// at the end in their original order.
	Playback []valueobjects.FrameID

	// Chains partitions the frames into disjoint walks, used for layout
	// grouping. Frames with no connections form singleton chains.
	Chains [][]valueobjects.FrameID
}

// Derive computes ordinals, playback order and chains for the given frames
// and connections. Both slices must be in stored (insertion) order; that
// order is the deterministic tie-break whenever a frame has several
// unvisited outgoing connections. The function is pure and runs in O(V+E).
//
// A connection is a root when its source frame has no incoming connection.
// Each root starts a greedy forward walk that assigns ordinals until the
// current frame has no unvisited outgoing connection. Connections left over
// after all root walks (cycles, segments reachable only mid-chain) are
// walked from the first unvisited connection in stored order, which keeps
// the result stable for an unchanged connection set.
func Derive(frames []*entities.Frame, connections []*entities.Connection) Result {
	result := Result{
		Ordinals: make(map[valueobjects.ConnectionID]int, len(connections)),
		Playback: make([]valueobjects.FrameID, 0, len(frames)),
		Chains:   [][]valueobjects.FrameID{},
	}

	known := make(map[valueobjects.FrameID]bool, len(frames))
	frameOrder := make([]valueobjects.FrameID, 0, len(frames))
	for _, f := range frames {
		known[f.ID()] = true
		frameOrder = append(frameOrder, f.ID())
	}

	outgoing := make(map[valueobjects.FrameID][]*entities.Connection)
	hasIncoming := make(map[valueobjects.FrameID]bool)
	for _, conn := range connections {
		outgoing[conn.From()] = append(outgoing[conn.From()], conn)
		hasIncoming[conn.To()] = true
	}

	visited := make(map[valueobjects.ConnectionID]bool, len(connections))
	claimed := make(map[valueobjects.FrameID]bool, len(frames))

	// Cursor per frame into its outgoing list; only ever advances, so the
	// whole derivation touches each connection a bounded number of times.
	cursor := make(map[valueobjects.FrameID]int)

	nextOrdinal := 1

	nextUnvisited := func(from valueobjects.FrameID) *entities.Connection {
		outs := outgoing[from]
		i := cursor[from]
		for i < len(outs) && visited[outs[i].ID()] {
			i++
		}
		cursor[from] = i
		if i < len(outs) {
			return outs[i]
		}
		return nil
	}

	walk := func(start valueobjects.FrameID) {
		var chain []valueobjects.FrameID

		claim := func(id valueobjects.FrameID) {
			// Connections may reference frames that no longer exist; such
			// endpoints are skipped rather than invented.
			if !known[id] || claimed[id] {
				return
			}
			claimed[id] = true
			chain = append(chain, id)
			result.Playback = append(result.Playback, id)
		}

		claim(start)
		current := start
		for {
			step := nextUnvisited(current)
			if step == nil {
				break
			}
			visited[step.ID()] = true
			result.Ordinals[step.ID()] = nextOrdinal
			nextOrdinal++
			current = step.To()
			claim(current)
		}

		if len(chain) > 0 {
			result.Chains = append(result.Chains, chain)
		}
	}

	// Root walks first: every connection whose source has no incoming edge.
	for _, conn := range connections {
		if !hasIncoming[conn.From()] && !visited[conn.ID()] {
			walk(conn.From())
		}
	}

	// Whatever the root walks missed (cycles, mid-chain segments) is walked
	// in stored order; by the time a connection is reached here, everything
	// before it is visited, so it is its own first step.
	for _, conn := range connections {
		if !visited[conn.ID()] {
			walk(conn.From())
		}
	}

	// Frames never reached by any walk keep their original order, each its
	// own chain.
	for _, id := range frameOrder {
		if !claimed[id] {
			result.Playback = append(result.Playback, id)
			result.Chains = append(result.Chains, []valueobjects.FrameID{id})
		}
	}

	return result
}
