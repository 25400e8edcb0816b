package models

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoTriggerNode    = errors.New("workflow has no trigger node")
	ErrMultipleTriggers = errors.New("workflow has more than one trigger node")
	ErrDuplicateNodeID  = errors.New("duplicate node id")
	ErrDanglingEdge     = errors.New("edge references unknown node")
	ErrUnreachableNode  = errors.New("node is not reachable from the trigger")
	ErrEdgeIntoTrigger  = errors.New("edge targets the trigger node")
	ErrNoEntryNode      = errors.New("trigger has no downstream node")
)

// Graph is an indexed, read-only view over a workflow's nodes and edges.
// Node and edge order follows the definition.
type Graph struct {
	order    []string
	nodes    map[string]*Node
	outgoing map[string][]*Edge
	edges    []*Edge
	dupes    []string
}

func NewGraph(nodes []*Node, edges []*Edge) *Graph {
	g := &Graph{
		nodes:    make(map[string]*Node, len(nodes)),
		outgoing: make(map[string][]*Edge, len(nodes)),
		edges:    edges,
	}

	for _, n := range nodes {
		if n == nil {
			continue
		}

		if _, exists := g.nodes[n.ID]; exists {
			g.dupes = append(g.dupes, n.ID)

			continue
		}

		g.order = append(g.order, n.ID)
		g.nodes[n.ID] = n
	}

	for _, e := range edges {
		if e == nil {
			continue
		}

		g.outgoing[e.Source] = append(g.outgoing[e.Source], e)
	}

	return g
}

func (g *Graph) Node(id string) (*Node, bool) {
	n, ok := g.nodes[id]

	return n, ok
}

// Nodes returns the nodes in definition order.
func (g *Graph) Nodes() []*Node {
	nodes := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, g.nodes[id])
	}

	return nodes
}

func (g *Graph) Outgoing(id string) []*Edge {
	return g.outgoing[id]
}

// TriggerNode returns the first trigger node, or nil.
func (g *Graph) TriggerNode() *Node {
	for _, id := range g.order {
		if g.nodes[id].Type == NodeTypeTrigger {
			return g.nodes[id]
		}
	}

	return nil
}

// EntryNode returns the first non-trigger node downstream of the trigger.
func (g *Graph) EntryNode() (*Node, error) {
	trigger := g.TriggerNode()
	if trigger == nil {
		return nil, ErrNoTriggerNode
	}

	for _, e := range g.outgoing[trigger.ID] {
		n, ok := g.nodes[e.Target]
		if ok && n.Type != NodeTypeTrigger {
			return n, nil
		}
	}

	return nil, ErrNoEntryNode
}

// Next returns the target of the node's first outgoing edge, or "" when the
// node has none.
func (g *Graph) Next(id string) string {
	out := g.outgoing[id]
	if len(out) == 0 {
		return ""
	}

	return out[0].Target
}

// NextByHandle returns the target of the first outgoing edge whose source
// handle equals one of handles (case-insensitive).
func (g *Graph) NextByHandle(id string, handles ...string) string {
	for _, e := range g.outgoing[id] {
		for _, h := range handles {
			if strings.EqualFold(e.SourceHandle, h) {
				return e.Target
			}
		}
	}

	return ""
}

// DefaultNext returns the target of the first outgoing edge without a source handle.
func (g *Graph) DefaultNext(id string) string {
	for _, e := range g.outgoing[id] {
		if e.SourceHandle == "" {
			return e.Target
		}
	}

	return ""
}

// Validate checks that the graph has exactly one trigger, that every edge
// connects known nodes, that node payloads are well formed and that every
// node is reachable from the trigger.
func (g *Graph) Validate() error {
	if len(g.dupes) > 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateNodeID, strings.Join(g.dupes, ", "))
	}

	var trigger *Node

	for _, n := range g.Nodes() {
		err := n.Validate()
		if err != nil {
			return err
		}

		if n.Type != NodeTypeTrigger {
			continue
		}

		if trigger != nil {
			return ErrMultipleTriggers
		}

		trigger = n
	}

	if trigger == nil {
		return ErrNoTriggerNode
	}

	for _, e := range g.edges {
		_, srcOK := g.nodes[e.Source]
		_, dstOK := g.nodes[e.Target]

		if !srcOK || !dstOK {
			return fmt.Errorf("%w: edge %s (%s -> %s)", ErrDanglingEdge, e.ID, e.Source, e.Target)
		}

		if e.Target == trigger.ID {
			return fmt.Errorf("%w: edge %s", ErrEdgeIntoTrigger, e.ID)
		}
	}

	reached := g.reachableFrom(trigger.ID)

	var unreachable []string

	for _, id := range g.order {
		if !reached[id] {
			unreachable = append(unreachable, id)
		}
	}

	if len(unreachable) > 0 {
		return fmt.Errorf("%w: %s", ErrUnreachableNode, strings.Join(unreachable, ", "))
	}

	return nil
}

// HasCycle reports whether any directed cycle exists.
func (g *Graph) HasCycle() bool {
	const (
		unvisited = iota
		inProgress
		done
	)

	state := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		state[id] = inProgress

		for _, e := range g.outgoing[id] {
			switch state[e.Target] {
			case inProgress:
				return true
			case unvisited:
				if _, ok := g.nodes[e.Target]; ok && visit(e.Target) {
					return true
				}
			}
		}

		state[id] = done

		return false
	}

	for _, id := range g.order {
		if state[id] == unvisited && visit(id) {
			return true
		}
	}

	return false
}

func (g *Graph) reachableFrom(start string) map[string]bool {
	seen := map[string]bool{start: true}
	stack := []string{start}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		for _, e := range g.outgoing[id] {
			if !seen[e.Target] {
				seen[e.Target] = true
				stack = append(stack, e.Target)
			}
		}
	}

	return seen
}
