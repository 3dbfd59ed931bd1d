package dispatch

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

const allFailedReply = "I wasn't able to complete any part of that request right now. Please try again in a moment."

type ExecutorConfig struct {
	// AgentTimeout bounds each individual agent dispatch; expiry fails
	// that one dispatch without cancelling siblings.
	AgentTimeout time.Duration `envconfig:"AGENT_TIMEOUT" split_words:"true" default:"30s"`
}

// Executor runs an execution plan: independent intents concurrently,
// dependent intents in order with accumulated context, then merges the
// contributions with provenance.
type Executor struct {
	registry contractx.Registry
	timeout  time.Duration
}

func NewExecutor(registry contractx.Registry, cfg ExecutorConfig) *Executor {
	timeout := cfg.AgentTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Executor{registry: registry, timeout: timeout}
}

// Execute runs the plan and returns the provenance list plus the merged
// user-facing reply. The error is non-nil only for malformed plans; agent
// failures are recorded per response, never propagated.
func (e *Executor) Execute(
	ctx context.Context,
	plan contractx.ExecutionPlan,
	base contractx.AgentRequest,
) ([]contractx.AgentResponse, string, error) {
	if plan.Size() == 0 {
		return nil, "", fmt.Errorf("%w: empty execution plan", contractx.ErrValidation)
	}

	responses := make([]contractx.AgentResponse, 0, plan.Size())

	// parallel phase: one goroutine per independent intent, each isolated
	// behind its own timeout
	if len(plan.Independent) > 0 {
		type indexed struct {
			pos  int
			resp contractx.AgentResponse
		}
		done := make(chan indexed, len(plan.Independent))

		for pos, res := range plan.Independent {
			go func(pos int, res contractx.IntentResult) {
				done <- indexed{pos: pos, resp: e.dispatch(ctx, res, base, nil)}
			}(pos, res)
		}

		parallel := make([]contractx.AgentResponse, len(plan.Independent))
		for range plan.Independent {
			d := <-done
			d.resp.OrderIndex = len(responses) // completion order
			parallel[d.pos] = d.resp
			responses = append(responses, contractx.AgentResponse{})
		}
		// merge order is the stable original intent order even though
		// completion order is not deterministic
		copy(responses, parallel)
	}

	// sequential phase: forward accumulated metadata, skip steps whose
	// every prerequisite failed
	execContext := make(map[string]any)
	outcomeByIntent := make(map[contractx.Intent]bool, plan.Size())
	for i, res := range plan.Independent {
		outcomeByIntent[res.Intent] = responses[i].Succeeded
		if responses[i].Succeeded {
			for k, v := range responses[i].Metadata {
				execContext[string(res.Intent)+"."+k] = v
			}
		}
	}

	for _, dep := range plan.Dependent {
		if !anySucceeded(outcomeByIntent, dep.DependsOn) {
			resp := contractx.AgentResponse{
				AgentName:  agentNameFor(e.registry, dep.Result.Intent),
				Intent:     dep.Result.Intent,
				OrderIndex: len(responses),
				Succeeded:  false,
				Error:      fmt.Sprintf("prerequisite failed: %s", joinIntents(dep.DependsOn)),
			}
			outcomeByIntent[dep.Result.Intent] = false
			responses = append(responses, resp)
			continue
		}

		resp := e.dispatch(ctx, dep.Result, base, execContext)
		resp.OrderIndex = len(responses)
		outcomeByIntent[dep.Result.Intent] = resp.Succeeded
		if resp.Succeeded {
			for k, v := range resp.Metadata {
				execContext[string(dep.Result.Intent)+"."+k] = v
			}
		}
		responses = append(responses, resp)
	}

	return responses, Merge(responses), nil
}

// ExecuteSequential is the safety-net path: every intent in order, no
// concurrency, no dependency bookkeeping beyond forwarded metadata.
func (e *Executor) ExecuteSequential(
	ctx context.Context,
	results []contractx.IntentResult,
	base contractx.AgentRequest,
) ([]contractx.AgentResponse, string) {
	responses := make([]contractx.AgentResponse, 0, len(results))
	execContext := make(map[string]any)

	for _, res := range results {
		resp := e.dispatch(ctx, res, base, execContext)
		resp.OrderIndex = len(responses)
		if resp.Succeeded {
			for k, v := range resp.Metadata {
				execContext[string(res.Intent)+"."+k] = v
			}
		}
		responses = append(responses, resp)
	}
	return responses, Merge(responses)
}

// dispatch runs one agent with its own timeout, converting every failure
// mode (missing agent, error, panic, timeout) into a failed response.
func (e *Executor) dispatch(
	ctx context.Context,
	res contractx.IntentResult,
	base contractx.AgentRequest,
	execContext map[string]any,
) (resp contractx.AgentResponse) {
	started := time.Now()
	resp = contractx.AgentResponse{
		Intent:    res.Intent,
		Succeeded: false,
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).
				Str("intent", string(res.Intent)).
				Msg("agent panicked")
			resp.Succeeded = false
			resp.Error = fmt.Sprintf("agent panicked: %v", r)
		}
		resp.ElapsedMS = time.Since(started).Milliseconds()
		if resp.ElapsedMS < 1 {
			resp.ElapsedMS = 1
		}
	}()

	agent, ok := e.registry.AgentFor(res.Intent)
	if !ok {
		resp.Error = contractx.ErrNoAgent.Error()
		return resp
	}
	resp.AgentName = agent.Name()

	req := base
	req.Intent = res.Intent
	req.Entities = res.Entities
	if len(execContext) > 0 {
		req.Context = make(map[string]any, len(execContext))
		for k, v := range execContext {
			req.Context[k] = v
		}
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	type agentOut struct {
		resp contractx.AgentResponse
		err  error
	}
	outCh := make(chan agentOut, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).
					Str("intent", string(res.Intent)).
					Msg("agent panicked")
				outCh <- agentOut{err: fmt.Errorf("agent panicked: %v", r)}
			}
		}()
		out, err := agent.Execute(dispatchCtx, req)
		outCh <- agentOut{resp: out, err: err}
	}()

	// an agent that ignores cancellation must not hold the turn past its
	// deadline; a late result is discarded
	select {
	case <-dispatchCtx.Done():
		if dispatchCtx.Err() == context.DeadlineExceeded {
			resp.Error = contractx.ErrAgentTimeout.Error()
		} else {
			resp.Error = dispatchCtx.Err().Error()
		}
		return resp
	case o := <-outCh:
		if o.err != nil {
			if dispatchCtx.Err() == context.DeadlineExceeded {
				resp.Error = contractx.ErrAgentTimeout.Error()
			} else {
				resp.Error = o.err.Error()
			}
			return resp
		}
		out := o.resp
		out.AgentName = agent.Name()
		out.Intent = res.Intent
		out.Succeeded = true
		return out
	}
}

// Merge concatenates successful contributions in provenance order. When
// some agents failed it appends a note per failure; when all failed it
// returns an explicit could-not-complete reply.
func Merge(responses []contractx.AgentResponse) string {
	var parts []string
	var failed []contractx.AgentResponse

	for _, r := range responses {
		if r.Succeeded && strings.TrimSpace(r.Contribution) != "" {
			parts = append(parts, strings.TrimSpace(r.Contribution))
		} else if !r.Succeeded {
			failed = append(failed, r)
		}
	}

	if len(parts) == 0 {
		return allFailedReply
	}

	for _, f := range failed {
		parts = append(parts, fmt.Sprintf(
			"I couldn't complete the %s part of your request right now.",
			strings.ReplaceAll(string(f.Intent), "_", " ")))
	}
	return strings.Join(parts, "\n\n")
}

func anySucceeded(outcomes map[contractx.Intent]bool, deps []contractx.Intent) bool {
	for _, d := range deps {
		if outcomes[d] {
			return true
		}
	}
	return false
}

func agentNameFor(registry contractx.Registry, intent contractx.Intent) string {
	if agent, ok := registry.AgentFor(intent); ok {
		return agent.Name()
	}
	return string(intent)
}
