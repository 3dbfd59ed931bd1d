package agents

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
	llmx "github.com/shaonidutta/convergeai/agent/llm"
)

// specialistOutput is the structured reply every specialist model returns.
type specialistOutput struct {
	Response    string         `json:"response"`
	ActionTaken string         `json:"action_taken,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

type specialistPayload struct {
	Message   string            `json:"message"`
	UserID    string            `json:"user_id"`
	SessionID string            `json:"session_id"`
	Intent    contractx.Intent  `json:"intent"`
	Entities  map[string]string `json:"entities,omitempty"`
	Context   map[string]any    `json:"context,omitempty"`
}

// llmSpecialist is an LLM-backed specialist agent. Each instance carries
// its own system prompt; the structured graph and guard are shared wiring.
type llmSpecialist struct {
	name   string
	runner *llmx.StructuredRunner[specialistOutput]
}

func newLLMSpecialist(
	ctx context.Context,
	name string,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	guard *llmx.Guard,
) (*llmSpecialist, error) {
	runner, err := llmx.NewStructuredRunner[specialistOutput](
		ctx, chatModel, systemPrompt, "agents."+name, guard)
	if err != nil {
		return nil, err
	}
	return &llmSpecialist{name: name, runner: runner}, nil
}

func (a *llmSpecialist) Name() string {
	return a.name
}

func (a *llmSpecialist) Execute(ctx context.Context, req contractx.AgentRequest) (contractx.AgentResponse, error) {
	entities := make(map[string]string, len(req.Entities))
	for k, v := range req.Entities {
		entities[string(k)] = v
	}

	out, err := a.runner.Invoke(ctx, specialistPayload{
		Message:   req.Message,
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Intent:    req.Intent,
		Entities:  entities,
		Context:   req.Context,
	})
	if err != nil {
		return contractx.AgentResponse{}, err
	}

	response := strings.TrimSpace(out.Response)
	if response == "" {
		return contractx.AgentResponse{}, fmt.Errorf("%w: specialist %s returned empty response", contractx.ErrSchemaViolation, a.name)
	}

	return contractx.AgentResponse{
		AgentName:    a.name,
		Contribution: response,
		ActionTaken:  strings.TrimSpace(out.ActionTaken),
		Metadata:     out.Metadata,
	}, nil
}
