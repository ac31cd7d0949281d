package model

import (
	"encoding/json"
	"time"
)

// FunctionDecl is a function declaration candidate found in source text.
type FunctionDecl struct {
	Name     string   `json:"name"`
	Position Position `json:"position"`
}

// CallSite is a call candidate found in source text. Caller is the name of the
// innermost declared function enclosing the call, empty at top level.
type CallSite struct {
	Name     string   `json:"name"`
	Position Position `json:"position"`
	Caller   string   `json:"caller,omitempty"`
}

// FunctionCall records one observed or inferred invocation.
type FunctionCall struct {
	ID             string         `json:"id"`
	FunctionName   string         `json:"functionName"`
	Parameters     []any          `json:"parameters"`
	ReturnValue    any            `json:"returnValue,omitempty"`
	StartTime      time.Time      `json:"startTime"`
	EndTime        *time.Time     `json:"endTime,omitempty"`
	Duration       *time.Duration `json:"duration,omitempty"`
	Location       Position       `json:"location"`
	CallerFunction string         `json:"callerFunction,omitempty"`
	CallDepth      int            `json:"callDepth"`
}

// NodeMetadata aggregates the calls held by a CallGraphNode.
type NodeMetadata struct {
	TotalCalls      int           `json:"totalCalls"`
	AverageDuration time.Duration `json:"averageDuration"`
	MinDuration     time.Duration `json:"minDuration"`
	MaxDuration     time.Duration `json:"maxDuration"`
}

// CallGraphNode is one function in a call graph. Nodes are keyed by name, so
// functions sharing a name in different scopes collapse into one node.
type CallGraphNode struct {
	ID       string
	Name     string
	Location Position
	Calls    []FunctionCall
	Children []*CallGraphNode
	// Parent is a back-reference, not an ownership edge.
	Parent   *CallGraphNode
	Metadata NodeMetadata
}

type callGraphNodeJSON struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Location Position       `json:"location"`
	Calls    []FunctionCall `json:"calls"`
	Children []string       `json:"children"`
	Parent   string         `json:"parent,omitempty"`
	Metadata NodeMetadata   `json:"metadata"`
}

// ChildNames returns the names of the node's children in edge order.
func (n *CallGraphNode) ChildNames() []string {
	names := make([]string, 0, len(n.Children))
	for _, child := range n.Children {
		names = append(names, child.Name)
	}

	return names
}

// MarshalJSON encodes children and parent by name; static graphs may contain cycles.
func (n *CallGraphNode) MarshalJSON() ([]byte, error) {
	out := callGraphNodeJSON{
		ID:       n.ID,
		Name:     n.Name,
		Location: n.Location,
		Calls:    n.Calls,
		Children: n.ChildNames(),
		Metadata: n.Metadata,
	}
	if n.Parent != nil {
		out.Parent = n.Parent.Name
	}

	return json.Marshal(out)
}

// GraphMetadata summarizes a CallGraph.
type GraphMetadata struct {
	TotalFunctions int           `json:"totalFunctions"`
	TotalCalls     int           `json:"totalCalls"`
	MaxDepth       int           `json:"maxDepth"`
	AnalysisTime   time.Duration `json:"analysisTime"`
}

// CallGraph is a snapshot of a call forest. Nodes lists every node in
// declaration order, including nodes unreachable from the roots.
type CallGraph struct {
	RootNodes []*CallGraphNode `json:"rootNodes"`
	Nodes     []*CallGraphNode `json:"nodes"`
	AllCalls  []FunctionCall   `json:"allCalls"`
	Metadata  GraphMetadata    `json:"metadata"`
}

// Node returns the node with the given name.
func (g CallGraph) Node(name string) (*CallGraphNode, bool) {
	for _, node := range g.Nodes {
		if node.Name == name {
			return node, true
		}
	}

	return nil, false
}

// Root returns the root node with the given name.
func (g CallGraph) Root(name string) (*CallGraphNode, bool) {
	for _, node := range g.RootNodes {
		if node.Name == name {
			return node, true
		}
	}

	return nil, false
}

type callGraphJSON struct {
	RootNodes []callGraphNodeJSON `json:"rootNodes"`
	Nodes     []callGraphNodeJSON `json:"nodes"`
	AllCalls  []FunctionCall      `json:"allCalls"`
	Metadata  GraphMetadata       `json:"metadata"`
}

// UnmarshalJSON relinks children and parents by name.
func (g *CallGraph) UnmarshalJSON(data []byte) error {
	var in callGraphJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	byName := make(map[string]*CallGraphNode, len(in.Nodes))
	raw := make(map[string]callGraphNodeJSON, len(in.Nodes))
	out := CallGraph{AllCalls: in.AllCalls, Metadata: in.Metadata}

	for _, n := range append(in.Nodes, in.RootNodes...) {
		if _, ok := byName[n.Name]; ok {
			continue
		}

		node := &CallGraphNode{ID: n.ID, Name: n.Name, Location: n.Location, Calls: n.Calls, Metadata: n.Metadata}
		byName[n.Name] = node
		raw[n.Name] = n
		out.Nodes = append(out.Nodes, node)
	}

	for _, node := range out.Nodes {
		n := raw[node.Name]
		for _, child := range n.Children {
			if c, ok := byName[child]; ok {
				node.Children = append(node.Children, c)
			}
		}

		if n.Parent != "" {
			node.Parent = byName[n.Parent]
		}
	}

	for _, root := range in.RootNodes {
		out.RootNodes = append(out.RootNodes, byName[root.Name])
	}

	*g = out

	return nil
}
