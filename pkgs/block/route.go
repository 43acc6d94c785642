package block

import (
	"errors"

	"github.com/keskad/traintastic-go/pkgs/train"
)

var (
	ErrNoRoute           = errors.New("block: no route between entry and exit")
	ErrRouteBlockNotFree = errors.New("block: a block along the route is not free")
)

// Graph is a caller-supplied adjacency map from block ID to the IDs of
// blocks directly reachable from it. It is the thin stand-in this package
// uses for the real NX path walk, which in the original runs over a full
// tile/board graph (turnouts, bridges, crossings) that is out of scope
// here; SelectRoute only needs "what's reachable from this block".
type Graph map[string][]string

// SelectRoute finds the shortest entry-to-exit path through graph (breadth
// first, so shortest-hop) and reserves every block along it for t, other
// than entry itself (assumed already held by t). If any block on the path
// besides entry isn't Free, or no path exists, nothing is reserved and an
// error is returned — mirroring the NX button's refusal to route a train
// through a block held by another train.
func SelectRoute(graph Graph, lookup func(id string) *Block, entry, exit string, t *train.Train) ([]*Block, error) {
	ids := bfsPath(graph, entry, exit)
	if ids == nil {
		return nil, ErrNoRoute
	}

	blocks := make([]*Block, 0, len(ids))
	for _, id := range ids {
		b := lookup(id)
		if b == nil {
			return nil, ErrNoRoute
		}
		blocks = append(blocks, b)
	}

	for _, b := range blocks[1:] {
		if b.State() != StateFree {
			return nil, ErrRouteBlockNotFree
		}
	}

	for _, b := range blocks[1:] {
		if err := b.AssignTrain(t); err != nil {
			// Best effort: undo anything already reserved this call.
			for _, done := range blocks[1:] {
				if done == b {
					break
				}
				_ = done.RemoveTrain(t)
			}
			return nil, err
		}
	}
	return blocks, nil
}

// bfsPath returns the shortest path (inclusive of start and end) through
// graph, or nil if end is unreachable from start.
func bfsPath(graph Graph, start, end string) []string {
	if start == end {
		return []string{start}
	}

	visited := map[string]bool{start: true}
	prev := map[string]string{}
	queue := []string{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range graph[cur] {
			if visited[next] {
				continue
			}
			visited[next] = true
			prev[next] = cur
			if next == end {
				path := []string{end}
				for p := end; p != start; {
					p = prev[p]
					path = append([]string{p}, path...)
				}
				return path
			}
			queue = append(queue, next)
		}
	}
	return nil
}
