package agents

import (
	"context"
	"fmt"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
	llmx "github.com/shaonidutta/convergeai/agent/llm"
	promptx "github.com/shaonidutta/convergeai/agent/prompt"
)

// agentNames maps each routable intent to the specialist serving it.
// Booking management and status share one agent, as do the catalog-backed
// inquiries.
var agentNames = map[contractx.Intent]string{
	contractx.IntentBookingManagement: "booking_agent",
	contractx.IntentBookingStatus:     "booking_agent",
	contractx.IntentCancellation:      "cancellation_agent",
	contractx.IntentComplaint:         "complaint_agent",
	contractx.IntentPolicyInquiry:     "policy_agent",
	contractx.IntentDataQuery:         "sql_agent",
	contractx.IntentPricingInquiry:    "service_agent",
	contractx.IntentServiceInquiry:    "service_agent",
}

type registryImpl struct {
	byIntent map[contractx.Intent]contractx.Agent
}

func (r *registryImpl) AgentFor(intent contractx.Intent) (contractx.Agent, bool) {
	agent, ok := r.byIntent[intent]
	return agent, ok
}

// NewRegistry builds the static intent -> agent table at startup. Each
// distinct agent name gets one model instance and one compiled graph,
// shared across the intents it serves.
func NewRegistry(ctx context.Context, cfg llmx.Config, guard *llmx.Guard) (contractx.Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	prompts := promptx.LoadPromptSet()

	modelCfg := cfg.OpenRouterFor(llmx.RoleSpecialist)
	chatModel, err := modelCfg.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: create specialist model: %v", contractx.ErrModelInvoke, err)
	}

	byName := make(map[string]contractx.Agent, len(agentNames))
	byIntent := make(map[contractx.Intent]contractx.Agent, len(agentNames))

	for intent, name := range agentNames {
		if agent, ok := byName[name]; ok {
			byIntent[intent] = agent
			continue
		}
		systemPrompt, ok := prompts.Agents[intent]
		if !ok {
			return nil, fmt.Errorf("%w: no prompt for intent %s", contractx.ErrValidation, intent)
		}
		agent, err := newLLMSpecialist(ctx, name, chatModel, systemPrompt, guard)
		if err != nil {
			return nil, err
		}
		byName[name] = agent
		byIntent[intent] = agent
	}

	return &registryImpl{byIntent: byIntent}, nil
}

// NewStaticRegistry wraps pre-built agents, used by tests and by hosts
// that bring their own specialist implementations.
func NewStaticRegistry(byIntent map[contractx.Intent]contractx.Agent) contractx.Registry {
	cp := make(map[contractx.Intent]contractx.Agent, len(byIntent))
	for k, v := range byIntent {
		cp[k] = v
	}
	return &registryImpl{byIntent: cp}
}
