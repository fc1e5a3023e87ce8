// Package sides implements the optional sideId assignment pass spec.md
// §9 describes: a connected-components partition of a battle's
// participant alliances into two or more factions, run independently
// after core clustering so C3 stays pure (no side-taking logic mixed
// into cluster membership decisions, per DESIGN.md's Open Question
// decision). Two alliances are adjacent when they co-occur on opposite
// sides of the same killmail (one as victim's alliance, the other as an
// attacker's); connected components of that adjacency graph become
// sides, numbered by descending component size for stability.
package sides

import "sort"

// KillmailEdge is one killmail's victim/attacker alliance pair, the unit
// of adjacency this pass consumes. Corp id is used as a fallback grouping
// key when an actor has no alliance (grounded on spec.md §3's sideId
// being "a faction partition" — independent pilots still belong to a
// corp-level faction).
type KillmailEdge struct {
	VictimKey    int64
	AttackerKeys []int64
}

// unionFind is a standard disjoint-set structure with path compression
// and union by size.
type unionFind struct {
	parent map[int64]int64
	size   map[int64]int64
}

func newUnionFind() *unionFind {
	return &unionFind{parent: make(map[int64]int64), size: make(map[int64]int64)}
}

func (u *unionFind) find(x int64) int64 {
	if _, ok := u.parent[x]; !ok {
		u.parent[x] = x
		u.size[x] = 1
		return x
	}
	root := x
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[x] != root {
		next := u.parent[x]
		u.parent[x] = root
		x = next
	}
	return root
}

func (u *unionFind) union(a, b int64) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.size[ra] < u.size[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	u.size[ra] += u.size[rb]
}

// Assign computes a sideId (0-based, ordered by descending component
// size) for every entity key (alliance or corp id) referenced across
// edges. Entities with no edges at all are omitted from the result — a
// lone pilot with no co-occurrence never gets a side.
func Assign(edges []KillmailEdge) map[int64]int {
	uf := newUnionFind()

	for _, e := range edges {
		uf.find(e.VictimKey)
		for _, attackerKey := range e.AttackerKeys {
			uf.find(attackerKey)
			uf.union(e.VictimKey, attackerKey)
		}
	}

	componentMembers := make(map[int64][]int64)
	for key := range uf.parent {
		root := uf.find(key)
		componentMembers[root] = append(componentMembers[root], key)
	}

	roots := make([]int64, 0, len(componentMembers))
	for root := range componentMembers {
		roots = append(roots, root)
	}
	sort.Slice(roots, func(i, j int) bool {
		si, sj := len(componentMembers[roots[i]]), len(componentMembers[roots[j]])
		if si != sj {
			return si > sj
		}
		return roots[i] < roots[j]
	})

	assignment := make(map[int64]int, len(uf.parent))
	for sideID, root := range roots {
		for _, key := range componentMembers[root] {
			assignment[key] = sideID
		}
	}
	return assignment
}
