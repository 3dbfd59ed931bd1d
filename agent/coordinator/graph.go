package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
	slotfillx "github.com/shaonidutta/convergeai/agent/slotfill"
	statex "github.com/shaonidutta/convergeai/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type graphInput struct {
	SessionID string
	UserID    string
	Text      string
}

type graphState struct {
	SessionID string
	UserID    string
	Text      string
	Now       time.Time

	State *statex.DialogState
	Turn  slotfillx.TurnResult

	Responses []contractx.AgentResponse
	Reply     string
}

func (o *Coordinator) compileHandleMessageGraph(
	ctx context.Context,
) (compose.Runnable[graphInput, contractx.TurnResponse], error) {
	graph := compose.NewGraph[graphInput, contractx.TurnResponse]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, in graphInput) (*graphState, error) {
			return validateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("load_or_create_state",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			return o.loadOrCreateState(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node load_or_create_state: %w", err)
	}

	if err := graph.AddLambdaNode("slot_fill",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (*graphState, error) {
			in.Turn = o.slotfill.Turn(ctx, in.State, in.Text, in.Now)
			in.Reply = in.Turn.Reply
			return in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node slot_fill: %w", err)
	}

	if err := graph.AddLambdaNode("execute_agents",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (contractx.TurnResponse, error) {
			o.executeTurn(ctx, in)
			return o.saveAndFinalize(ctx, in), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node execute_agents: %w", err)
	}

	if err := graph.AddLambdaNode("finalize_reply",
		compose.InvokableLambda(func(ctx context.Context, in *graphState) (contractx.TurnResponse, error) {
			return o.saveAndFinalize(ctx, in), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node finalize_reply: %w", err)
	}

	branch := compose.NewGraphBranch(
		func(ctx context.Context, in *graphState) (string, error) {
			if in == nil {
				return "", fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
			}
			if in.Turn.Outcome == slotfillx.OutcomeReady {
				return "execute_agents", nil
			}
			return "finalize_reply", nil
		},
		map[string]bool{
			"execute_agents": true,
			"finalize_reply": true,
		},
	)

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "load_or_create_state"},
		{"load_or_create_state", "slot_fill"},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}
	if err := graph.AddBranch("slot_fill", branch); err != nil {
		return nil, fmt.Errorf("add slot_fill branch: %w", err)
	}
	if err := graph.AddEdge("execute_agents", compose.END); err != nil {
		return nil, fmt.Errorf("add edge execute_agents->end: %w", err)
	}
	if err := graph.AddEdge("finalize_reply", compose.END); err != nil {
		return nil, fmt.Errorf("add edge finalize_reply->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("coordinator.handle_message"))
	if err != nil {
		return nil, fmt.Errorf("compile coordinator graph: %w", err)
	}
	return runner, nil
}

func validateRequest(in graphInput, nowFn func() time.Time) (*graphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}
	return &graphState{
		SessionID: sessionID,
		UserID:    strings.TrimSpace(in.UserID),
		Text:      text,
		Now:       nowFn().UTC(),
	}, nil
}

func (o *Coordinator) loadOrCreateState(ctx context.Context, in *graphState) (*graphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	st, err := o.store.Load(ctx, in.SessionID)
	if err != nil {
		if !errors.Is(err, statex.ErrStateNotFound) {
			return nil, err
		}
		st = statex.NewDialogState(in.SessionID, in.UserID, o.channelType, in.Now)
	}
	in.State = st
	return in, nil
}

// executeTurn resolves the plan and runs the agents, falling back to naive
// sequential execution if the graph path itself fails. The user's request
// is never silently dropped.
func (o *Coordinator) executeTurn(ctx context.Context, in *graphState) {
	base := contractx.AgentRequest{
		Message:   in.Text,
		UserID:    in.UserID,
		SessionID: in.SessionID,
	}

	plan, err := o.resolver.Resolve(in.Turn.Results)
	if err != nil {
		if errors.Is(err, contractx.ErrDependencyMissing) {
			// clarify policy: surface the missing context as a question
			in.Reply = "Before I can do that, could you tell me which booking this is about?"
			in.State.AwaitingConfirmation = false
			return
		}
		log.Error().Err(err).Msg("plan resolution failed, running sequential fallback")
		in.Responses, in.Reply = o.executor.ExecuteSequential(ctx, in.Turn.Results, base)
		o.finishExecution(in)
		return
	}

	responses, merged, err := o.executor.Execute(ctx, plan, base)
	if err != nil {
		log.Error().Err(err).Msg("graph execution failed, running sequential fallback")
		responses, merged = o.executor.ExecuteSequential(ctx, in.Turn.Results, base)
	}
	in.Responses = responses
	in.Reply = merged
	o.finishExecution(in)
}

func (o *Coordinator) finishExecution(in *graphState) {
	// intent-scoped tracking is done; collected entities stay for
	// carryover into the next topic
	in.State.ResetIntent()
	in.State.AppendTurn("assistant", in.Reply, in.Now)
}

func (o *Coordinator) saveAndFinalize(ctx context.Context, in *graphState) contractx.TurnResponse {
	if err := in.State.Validate(); err != nil {
		log.Error().Err(err).Str("session_id", in.SessionID).Msg("dialog state failed validation, not saving")
	} else if err := o.store.Save(ctx, in.State); err != nil {
		log.Error().Err(err).Str("session_id", in.SessionID).Msg("saving dialog state failed")
	}

	resp := contractx.TurnResponse{
		Reply:                in.Reply,
		Intent:               in.Turn.Intent,
		Confidence:           in.Turn.Confidence,
		AwaitingConfirmation: in.State.AwaitingConfirmation,
		Provenance:           in.Responses,
	}
	for _, r := range in.Responses {
		if r.AgentName != "" {
			resp.AgentsUsed = append(resp.AgentsUsed, r.AgentName)
		}
	}
	if resp.Reply == "" {
		resp.Reply = dispatchFallbackReply
	}

	o.publishTurn(ctx, in, resp)
	return resp
}

const dispatchFallbackReply = "I'm sorry, something went wrong. Could you try that again?"
