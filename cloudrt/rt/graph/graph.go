package graph

import (
	"errors"
	"fmt"
)

var (
	ErrCycle       = errors.New("graph: cycle detected")
	ErrUnknownNode = errors.New("graph: unknown node")
	ErrNotBuilt    = errors.New("graph: Build has not been called")
)

// Well-known labels other passes order themselves against.
const (
	EndMainPass = "end_main_pass"
	Bloom       = "bloom"
)

// Node is one stage of a per-view render graph. F is the per-frame context
// and V the view being rendered.
type Node[F, V any] interface {
	Name() string
	// Precondition reports whether every resource the node needs is
	// ready. A false result skips the node for this view silently.
	Precondition(frame F, view V) bool
	Execute(frame F, view V) error
}

type Logger interface {
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// EmptyNode is an ordering label with no work.
type EmptyNode[F, V any] struct {
	Label string
}

func (n EmptyNode[F, V]) Name() string           { return n.Label }
func (n EmptyNode[F, V]) Precondition(F, V) bool { return true }
func (n EmptyNode[F, V]) Execute(F, V) error     { return nil }

type Graph[F, V any] struct {
	log   Logger
	nodes map[string]Node[F, V]
	names []string // insertion order
	edges map[string][]string
	order []Node[F, V]
	built bool
}

func New[F, V any](log Logger) *Graph[F, V] {
	return &Graph[F, V]{
		log:   log,
		nodes: make(map[string]Node[F, V]),
		edges: make(map[string][]string),
	}
}

// AddNode registers n. Adding a second node with the same name replaces
// the first and invalidates the built order.
func (g *Graph[F, V]) AddNode(n Node[F, V]) {
	if _, ok := g.nodes[n.Name()]; !ok {
		g.names = append(g.names, n.Name())
	}
	g.nodes[n.Name()] = n
	g.built = false
}

// AddEdges chains the named nodes: AddEdges(a, b, c) orders a before b
// before c.
func (g *Graph[F, V]) AddEdges(names ...string) {
	for i := 1; i < len(names); i++ {
		g.edges[names[i-1]] = append(g.edges[names[i-1]], names[i])
	}
	g.built = false
}

// Build resolves the execution order. Ties are broken by insertion order
// so the result is deterministic.
func (g *Graph[F, V]) Build() error {
	indeg := make(map[string]int, len(g.names))
	for _, name := range g.names {
		indeg[name] = 0
	}
	for from, tos := range g.edges {
		if _, ok := g.nodes[from]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownNode, from)
		}
		for _, to := range tos {
			if _, ok := g.nodes[to]; !ok {
				return fmt.Errorf("%w: %q", ErrUnknownNode, to)
			}
			indeg[to]++
		}
	}

	order := make([]Node[F, V], 0, len(g.names))
	done := make(map[string]bool, len(g.names))
	for len(order) < len(g.names) {
		progressed := false
		for _, name := range g.names {
			if done[name] || indeg[name] > 0 {
				continue
			}
			done[name] = true
			order = append(order, g.nodes[name])
			for _, to := range g.edges[name] {
				indeg[to]--
			}
			progressed = true
			break
		}
		if !progressed {
			var stuck []string
			for _, name := range g.names {
				if !done[name] {
					stuck = append(stuck, name)
				}
			}
			return fmt.Errorf("%w: %v", ErrCycle, stuck)
		}
	}
	g.order = order
	g.built = true
	return nil
}

// Order returns the node names in execution order.
func (g *Graph[F, V]) Order() []string {
	out := make([]string, len(g.order))
	for i, n := range g.order {
		out[i] = n.Name()
	}
	return out
}

// Run executes the graph once per view. A node whose precondition fails is
// skipped; an execute error is logged and the remaining nodes still run.
func (g *Graph[F, V]) Run(frame F, views []V) error {
	if !g.built {
		return ErrNotBuilt
	}
	for _, view := range views {
		for _, n := range g.order {
			if !n.Precondition(frame, view) {
				continue
			}
			if err := n.Execute(frame, view); err != nil {
				g.log.Errorf("render graph: node %s failed: %v", n.Name(), err)
			}
		}
	}
	return nil
}
