package engine

import (
	"fmt"
	"strings"

	"github.com/smalls/arcs/pkg/strategizer"
)

// ProvenanceGraph is the derivation graph of a planning run: one node per
// distinct recipe, one edge per derivation. A recipe reached by converging
// rewrite paths has several incoming edges.
type ProvenanceGraph struct {
	// Nodes maps canonical hashes to nodes.
	Nodes map[string]*ProvenanceNode

	// Edges lists derivations in the order they were recorded.
	Edges []ProvenanceEdge

	// Roots lists the seed recipes.
	Roots []string

	// Depth is the number of generations.
	Depth int

	// levels groups hashes by generation, in admission order.
	levels [][]string
}

// ProvenanceNode is one distinct recipe.
type ProvenanceNode struct {
	Hash     string
	Name     string
	Level    int
	Score    float64
	Fitness  float64
	Valid    bool
	Resolved bool

	// Parents and Children hold the hashes of adjacent nodes.
	Parents  []string
	Children []string
}

// ProvenanceEdge is one derivation from a parent recipe through a strategy.
type ProvenanceEdge struct {
	From     string
	To       string
	Strategy string

	// Attached marks an edge folded into an existing recipe by deduplication.
	Attached bool
}

// BuildProvenance builds the graph from the individuals of a run, as
// returned by Strategizer.Individuals.
func BuildProvenance(individuals []*strategizer.Individual) *ProvenanceGraph {
	g := &ProvenanceGraph{
		Nodes: make(map[string]*ProvenanceNode, len(individuals)),
		Edges: make([]ProvenanceEdge, 0, len(individuals)),
		Roots: make([]string, 0),
	}

	hashOf := make(map[*strategizer.Individual]string, len(individuals))
	for _, ind := range individuals {
		h := ind.Hash()
		hashOf[ind] = h
		g.Nodes[h] = &ProvenanceNode{
			Hash:     h,
			Name:     ind.Recipe.Name(),
			Level:    ind.Generation,
			Score:    ind.Score,
			Fitness:  ind.Fitness,
			Valid:    ind.Valid(),
			Resolved: ind.Recipe.IsResolved(),
		}
		for ind.Generation >= len(g.levels) {
			g.levels = append(g.levels, nil)
		}
		g.levels[ind.Generation] = append(g.levels[ind.Generation], h)
	}
	g.Depth = len(g.levels)

	for _, ind := range individuals {
		h := hashOf[ind]
		isRoot := true
		for i, d := range ind.Derivation {
			ph, ok := hashOf[d.Parent]
			if d.Parent == nil || !ok {
				continue
			}
			isRoot = false
			g.Edges = append(g.Edges, ProvenanceEdge{
				From:     ph,
				To:       h,
				Strategy: d.Strategy,
				Attached: i > 0,
			})
			g.Nodes[ph].Children = append(g.Nodes[ph].Children, h)
			g.Nodes[h].Parents = append(g.Nodes[h].Parents, ph)
		}
		if isRoot {
			g.Roots = append(g.Roots, h)
		}
	}

	return g
}

// Levels returns node hashes grouped by generation.
func (g *ProvenanceGraph) Levels() [][]string {
	return g.levels
}

// Lineage returns the hashes from a root to hash following each node's first
// derivation.
func (g *ProvenanceGraph) Lineage(hash string) []string {
	var path []string
	visited := make(map[string]bool)
	for h := hash; h != ""; {
		n, ok := g.Nodes[h]
		if !ok || visited[h] {
			break
		}
		visited[h] = true
		path = append(path, h)
		if len(n.Parents) == 0 {
			break
		}
		h = n.Parents[0]
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Validate checks that every edge joins known nodes, that roots have no
// parents and that the graph has no cycle.
func (g *ProvenanceGraph) Validate() error {
	for _, edge := range g.Edges {
		if _, exists := g.Nodes[edge.From]; !exists {
			return NewPermanentError(fmt.Sprintf("edge references non-existent node: %s", edge.From), nil).
				WithCode(ErrCodeInternal)
		}
		if _, exists := g.Nodes[edge.To]; !exists {
			return NewPermanentError(fmt.Sprintf("edge references non-existent node: %s", edge.To), nil).
				WithCode(ErrCodeInternal)
		}
	}

	for _, rootID := range g.Roots {
		if len(g.Nodes[rootID].Parents) > 0 {
			return NewPermanentError(fmt.Sprintf("root node %s has parents", short(rootID)), nil).
				WithCode(ErrCodeInternal)
		}
	}

	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	for _, level := range g.levels {
		for _, id := range level {
			if visited[id] {
				continue
			}
			if cycle := g.findCycle(id, visited, onStack, nil); cycle != nil {
				return NewPermanentError(fmt.Sprintf("derivation cycle detected: %s", formatCycle(cycle)), nil).
					WithCode(ErrCodeInternal)
			}
		}
	}
	return nil
}

// findCycle performs DFS over child edges and returns the first cycle found.
func (g *ProvenanceGraph) findCycle(id string, visited, onStack map[string]bool, path []string) []string {
	visited[id] = true
	onStack[id] = true
	path = append(path, id)

	for _, child := range g.Nodes[id].Children {
		if !visited[child] {
			if cycle := g.findCycle(child, visited, onStack, path); cycle != nil {
				return cycle
			}
		} else if onStack[child] {
			for i, p := range path {
				if p == child {
					return append(append([]string(nil), path[i:]...), child)
				}
			}
		}
	}

	onStack[id] = false
	return nil
}

// ToDOT renders the graph in Graphviz DOT format, one cluster per generation.
func (g *ProvenanceGraph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Provenance {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for level, ids := range g.levels {
		if len(ids) == 0 {
			continue
		}
		sb.WriteString(fmt.Sprintf("  subgraph cluster_generation_%d {\n", level))
		sb.WriteString(fmt.Sprintf("    label=\"Generation %d\";\n", level))
		sb.WriteString("    style=dashed;\n")

		for _, id := range ids {
			n := g.Nodes[id]
			label := fmt.Sprintf("%s\\nscore=%g fitness=%g", short(id), n.Score, n.Fitness)
			sb.WriteString(fmt.Sprintf("    \"%s\" [label=\"%s\", fillcolor=\"%s\", style=\"filled,rounded\"];\n",
				short(id), label, nodeColor(n)))
		}

		sb.WriteString("  }\n\n")
	}

	for _, e := range g.Edges {
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [label=\"%s\", %s];\n",
			short(e.From), short(e.To), e.Strategy, edgeStyle(e)))
	}

	sb.WriteString("}\n")
	return sb.String()
}

func short(hash string) string {
	if len(hash) > 12 {
		return hash[:12]
	}
	return hash
}

func formatCycle(cycle []string) string {
	parts := make([]string, len(cycle))
	for i, h := range cycle {
		parts[i] = short(h)
	}
	return strings.Join(parts, " -> ")
}

func nodeColor(n *ProvenanceNode) string {
	switch {
	case !n.Valid:
		return "lightcoral"
	case n.Resolved:
		return "lightgreen"
	default:
		return "white"
	}
}

func edgeStyle(e ProvenanceEdge) string {
	if e.Attached {
		return "style=dashed, color=blue"
	}
	return "style=solid, color=black"
}
