package lineage

import (
	"sort"

	"github.com/ledgerops/warehouse/entities"
)

//graph is an adjacency view over lineage edges. Duplicate from->to pairs are collapsed to the first edge
type graph struct {
	types    map[string]entities.LineageNodeType
	children map[string][]string
	parents  map[string][]string
	edges    []*entities.LineageEdge
}

func build(edges []*entities.LineageEdge) *graph {
	sorted := make([]*entities.LineageEdge, len(edges))
	copy(sorted, edges)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	g := &graph{
		types:    map[string]entities.LineageNodeType{},
		children: map[string][]string{},
		parents:  map[string][]string{},
	}

	seen := map[[2]string]bool{}
	for _, edge := range sorted {
		g.addNode(edge.From, edge.FromType)
		g.addNode(edge.To, edge.ToType)

		key := [2]string{edge.From, edge.To}
		if seen[key] {
			continue
		}
		seen[key] = true

		g.children[edge.From] = append(g.children[edge.From], edge.To)
		g.parents[edge.To] = append(g.parents[edge.To], edge.From)
		g.edges = append(g.edges, edge)
	}

	return g
}

//addNode keeps the first known type. Empty types become transformation
func (g *graph) addNode(id string, nodeType entities.LineageNodeType) {
	if current, ok := g.types[id]; ok && current != "" {
		return
	}
	if nodeType == "" {
		nodeType = entities.LineageTransformation
	}
	g.types[id] = nodeType
}

//levels returns the longest path length from any root (Kahn's order).
//Nodes on cycles keep the level reached before the cycle
func (g *graph) levels() map[string]int {
	inDegree := make(map[string]int, len(g.types))
	for id := range g.types {
		inDegree[id] = len(g.parents[id])
	}

	var ready []string
	for id, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, id)
		}
	}
	sort.Strings(ready)

	levels := make(map[string]int, len(g.types))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]

		for _, child := range g.children[id] {
			if levels[id]+1 > levels[child] {
				levels[child] = levels[id] + 1
			}
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
	}

	return levels
}

//downstream returns sorted ids reachable from the node
func (g *graph) downstream(id string) []string {
	visited := map[string]bool{id: true}
	stack := []string{id}
	result := []string{}
	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, child := range g.children[current] {
			if visited[child] {
				continue
			}
			visited[child] = true
			result = append(result, child)
			stack = append(stack, child)
		}
	}

	sort.Strings(result)
	return result
}
