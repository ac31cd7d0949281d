package domain

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/google/go-dap"

	m "github.com/mouse-blink/storyteller/internal/model"
)

// defaultCaller is the caller assigned to calls made outside any declared function.
const defaultCaller = "main"

// CallGraphModel builds call graphs from source text and from live stack traces.
type CallGraphModel interface {
	DebugTracker
	// BuildStatic extracts a call forest from doc. Nodes are keyed by name.
	BuildStatic(ctx context.Context, doc m.Document) (m.CallGraph, error)
	// Current returns the flat live view over every call observed in debug sessions.
	Current() m.CallGraph
	ClearAll()
}

type callGraphModel struct {
	extractor Extractor
	sessions  *sessionSet
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	active  map[string]*m.FunctionCall
	order   []string
	counter int
}

// NewCallGraphModel constructs a CallGraphModel using extractor for static builds.
func NewCallGraphModel(extractor Extractor, opts ...Option) CallGraphModel {
	o := buildOptions(opts)

	return &callGraphModel{
		extractor: extractor,
		sessions:  newSessionSet(),
		logger:    o.logger,
		now:       o.now,
		active:    make(map[string]*m.FunctionCall),
	}
}

func (cg *callGraphModel) Name() string {
	return "callgraph"
}

func (cg *callGraphModel) BuildStatic(ctx context.Context, doc m.Document) (m.CallGraph, error) {
	if err := ctx.Err(); err != nil {
		return m.CallGraph{}, fmt.Errorf("call graph build cancelled: %w", err)
	}

	start := cg.now()
	decls := cg.extractor.Functions(doc)
	sites := cg.extractor.Calls(doc)

	byName := make(map[string]*m.CallGraphNode, len(decls))
	nodes := make([]*m.CallGraphNode, 0, len(decls))

	for _, decl := range decls {
		if _, ok := byName[decl.Name]; ok {
			continue
		}

		node := &m.CallGraphNode{ID: decl.Name, Name: decl.Name, Location: decl.Position}
		byName[decl.Name] = node
		nodes = append(nodes, node)
	}

	var allCalls []m.FunctionCall

	cg.mu.Lock()
	for _, site := range sites {
		caller := site.Caller
		if caller == "" {
			caller = defaultCaller
		}

		callerNode, okCaller := byName[caller]
		calleeNode, okCallee := byName[site.Name]

		if !okCaller || !okCallee {
			continue
		}

		call := m.FunctionCall{
			ID:             "call_" + strconv.Itoa(cg.counter),
			FunctionName:   site.Name,
			Parameters:     []any{},
			StartTime:      start,
			Location:       site.Position,
			CallerFunction: caller,
		}
		cg.counter++

		callerNode.Calls = append(callerNode.Calls, call)
		if !hasChild(callerNode, calleeNode) {
			callerNode.Children = append(callerNode.Children, calleeNode)
		}

		calleeNode.Parent = callerNode
		allCalls = append(allCalls, call)
	}
	cg.mu.Unlock()

	var roots []*m.CallGraphNode

	for _, node := range nodes {
		node.Metadata = nodeMetadata(node.Calls)
		if node.Parent == nil {
			roots = append(roots, node)
		}
	}

	graph := m.CallGraph{
		RootNodes: roots,
		Nodes:     nodes,
		AllCalls:  allCalls,
		Metadata: m.GraphMetadata{
			TotalFunctions: len(nodes),
			TotalCalls:     len(allCalls),
			MaxDepth:       maxDepth(roots),
			AnalysisTime:   cg.now().Sub(start),
		},
	}

	cg.logger.Debug("static call graph built", "path", doc.Path,
		"functions", graph.Metadata.TotalFunctions, "calls", graph.Metadata.TotalCalls)

	return graph, nil
}

func hasChild(parent, child *m.CallGraphNode) bool {
	for _, existing := range parent.Children {
		if existing == child {
			return true
		}
	}

	return false
}

func (cg *callGraphModel) Current() m.CallGraph {
	cg.mu.Lock()
	all := make([]m.FunctionCall, 0, len(cg.order))

	for _, key := range cg.order {
		all = append(all, *cg.active[key])
	}
	cg.mu.Unlock()

	byName := make(map[string]*m.CallGraphNode)

	var nodes []*m.CallGraphNode

	for _, call := range all {
		node, ok := byName[call.FunctionName]
		if !ok {
			node = &m.CallGraphNode{ID: call.FunctionName, Name: call.FunctionName, Location: call.Location}
			byName[call.FunctionName] = node
			nodes = append(nodes, node)
		}

		node.Calls = append(node.Calls, call)
	}

	var roots []*m.CallGraphNode

	for _, node := range nodes {
		node.Metadata = nodeMetadata(node.Calls)
		if !calledByOther(node, byName) {
			roots = append(roots, node)
		}
	}

	return m.CallGraph{
		RootNodes: roots,
		Nodes:     nodes,
		AllCalls:  all,
		Metadata: m.GraphMetadata{
			TotalFunctions: len(nodes),
			TotalCalls:     len(all),
			MaxDepth:       maxDepth(roots),
		},
	}
}

// calledByOther reports whether one of node's calls names a caller that is
// itself a different recorded function.
func calledByOther(node *m.CallGraphNode, byName map[string]*m.CallGraphNode) bool {
	for _, call := range node.Calls {
		if call.CallerFunction == "" || call.CallerFunction == node.Name {
			continue
		}

		if _, ok := byName[call.CallerFunction]; ok {
			return true
		}
	}

	return false
}

// nodeMetadata is recomputed from the call list on every snapshot.
func nodeMetadata(calls []m.FunctionCall) m.NodeMetadata {
	meta := m.NodeMetadata{TotalCalls: len(calls)}

	var (
		total time.Duration
		known int
	)

	for _, call := range calls {
		if call.Duration == nil {
			continue
		}

		d := *call.Duration
		if known == 0 || d < meta.MinDuration {
			meta.MinDuration = d
		}

		if d > meta.MaxDuration {
			meta.MaxDuration = d
		}

		total += d
		known++
	}

	if known > 0 {
		meta.AverageDuration = total / time.Duration(known)
	}

	return meta
}

// maxDepth walks every root depth first. Roots have depth 1. A node already on
// the current path is not entered again.
func maxDepth(roots []*m.CallGraphNode) int {
	best := 0
	onPath := make(map[*m.CallGraphNode]bool)

	var walk func(node *m.CallGraphNode, depth int)
	walk = func(node *m.CallGraphNode, depth int) {
		if depth > best {
			best = depth
		}

		onPath[node] = true
		for _, child := range node.Children {
			if !onPath[child] {
				walk(child, depth+1)
			}
		}
		onPath[node] = false
	}

	for _, root := range roots {
		walk(root, 1)
	}

	return best
}

func (cg *callGraphModel) ClearAll() {
	cg.mu.Lock()
	defer cg.mu.Unlock()

	cg.active = make(map[string]*m.FunctionCall)
	cg.order = nil
	cg.counter = 0
}

func (cg *callGraphModel) AttachSession(session DebugSession) {
	cg.sessions.add(session)
	cg.logger.Debug("call graph attached", "session", session.Info().Name)
}

func (cg *callGraphModel) DetachSession(session DebugSession) {
	cg.sessions.remove(session)
	cg.logger.Debug("call graph detached", "session", session.Info().Name)
}

func (cg *callGraphModel) HandleDebugMessage(msg m.DebugMessage) {
	switch {
	case msg.IsEvent("stopped"):
		var body dap.StoppedEventBody
		if err := decodeBody(msg.Body, &body); err != nil {
			cg.logger.Warn("malformed stopped event", "error", err)

			return
		}

		threadID := body.ThreadId
		if threadID == 0 {
			threadID = 1
		}

		for _, session := range cg.sessions.list() {
			go cg.requestStackTrace(session, threadID)
		}
	case msg.IsEvent("continued"):
		cg.logger.Debug("execution continued")
	case msg.IsResponse("stackTrace"):
		var body dap.StackTraceResponseBody
		if err := decodeBody(msg.Body, &body); err != nil {
			cg.logger.Warn("malformed stackTrace response", "error", err)

			return
		}

		cg.processStackTrace(body.StackFrames)
	}
}

func (cg *callGraphModel) requestStackTrace(session DebugSession, threadID int) {
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	args := dap.StackTraceArguments{ThreadId: threadID}
	if _, err := session.Request(ctx, "stackTrace", args); err != nil {
		cg.logger.Warn("stack trace refresh failed", "session", session.Info().Name, "error", err)
	}
}

// processStackTrace opens a call for every frame not seen before. Calls stay
// active, even once their frame has returned, until ClearAll.
func (cg *callGraphModel) processStackTrace(frames []dap.StackFrame) {
	now := cg.now()

	cg.mu.Lock()
	defer cg.mu.Unlock()

	for i, frame := range frames {
		key := frame.Name + "_" + strconv.Itoa(frame.Id)
		if _, ok := cg.active[key]; ok {
			continue
		}

		caller := ""
		if i+1 < len(frames) {
			caller = frames[i+1].Name
		}

		cg.active[key] = &m.FunctionCall{
			ID:             key,
			FunctionName:   frame.Name,
			Parameters:     []any{},
			StartTime:      now,
			Location:       m.NewPosition(max(frame.Line-1, 0), max(frame.Column-1, 0)),
			CallerFunction: caller,
			CallDepth:      i,
		}
		cg.order = append(cg.order, key)
	}
}
