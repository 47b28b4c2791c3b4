package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	contractx "github.com/yixiaowang2001/game-sage-agent/agent/contract"
	nodex "github.com/yixiaowang2001/game-sage-agent/agent/nodes/orchestrator"
)

// compileAskGraph wires the controller state machine:
//
//	validate_request -> route -> dispatch -> summarize -> decide -> finalize -> record_session
//	                      ^                                 |
//	                      +---------------------------------+
//
// route and dispatch short-circuit to finalize when the session must stop.
func (o *Orchestrator) compileAskGraph(ctx context.Context) (compose.Runnable[nodex.GraphInput, contractx.FinalAnswer], error) {
	graph := compose.NewGraph[nodex.GraphInput, contractx.FinalAnswer]()

	if err := graph.AddLambdaNode(nodex.NodeValidateRequest,
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.deps.Now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	steps := map[string]func(context.Context, *nodex.GraphState, nodex.Deps) (*nodex.GraphState, error){
		nodex.NodeRoute:     nodex.Route,
		nodex.NodeDispatch:  nodex.Dispatch,
		nodex.NodeSummarize: nodex.Summarize,
		nodex.NodeDecide:    nodex.Decide,
		nodex.NodeFinalize:  nodex.Finalize,
	}
	for _, name := range []string{nodex.NodeRoute, nodex.NodeDispatch, nodex.NodeSummarize, nodex.NodeDecide, nodex.NodeFinalize} {
		step := steps[name]
		if err := graph.AddLambdaNode(name,
			compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
				return step(ctx, in, o.deps)
			}),
		); err != nil {
			return nil, fmt.Errorf("add node %s: %w", name, err)
		}
	}

	if err := graph.AddLambdaNode(nodex.NodeRecordSession,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (contractx.FinalAnswer, error) {
			return nodex.RecordSession(ctx, in, o.deps)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node record_session: %w", err)
	}

	edges := [][2]string{
		{compose.START, nodex.NodeValidateRequest},
		{nodex.NodeValidateRequest, nodex.NodeRoute},
		{nodex.NodeSummarize, nodex.NodeDecide},
		{nodex.NodeFinalize, nodex.NodeRecordSession},
		{nodex.NodeRecordSession, compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	branches := []struct {
		from string
		cond func(*nodex.GraphState) string
		to   []string
	}{
		{from: nodex.NodeRoute, cond: nodex.AfterRoute, to: []string{nodex.NodeDispatch, nodex.NodeFinalize}},
		{from: nodex.NodeDispatch, cond: nodex.AfterDispatch, to: []string{nodex.NodeSummarize, nodex.NodeFinalize}},
		{from: nodex.NodeDecide, cond: nodex.AfterDecide, to: []string{nodex.NodeRoute, nodex.NodeFinalize}},
	}
	for _, b := range branches {
		cond := b.cond
		ends := make(map[string]bool, len(b.to))
		for _, to := range b.to {
			ends[to] = true
		}
		branch := compose.NewGraphBranch(func(ctx context.Context, in *nodex.GraphState) (string, error) {
			return cond(in), nil
		}, ends)
		if err := graph.AddBranch(b.from, branch); err != nil {
			return nil, fmt.Errorf("add branch after %s: %w", b.from, err)
		}
	}

	// Each turn runs route, dispatch, summarize and decide.
	maxSteps := 4*o.deps.MaxTurns + 8
	runner, err := graph.Compile(ctx,
		compose.WithGraphName("orchestrator.ask"),
		compose.WithNodeTriggerMode(compose.AnyPredecessor),
		compose.WithMaxRunSteps(maxSteps),
	)
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
