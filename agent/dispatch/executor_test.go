package dispatch

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

type fakeAgent struct {
	name       string
	reply      string
	metadata   map[string]any
	err        error
	delay      time.Duration
	ignoresCtx bool
	panics     bool
	reqs       []contractx.AgentRequest
}

func (f *fakeAgent) Name() string { return f.name }

func (f *fakeAgent) Execute(ctx context.Context, req contractx.AgentRequest) (contractx.AgentResponse, error) {
	f.reqs = append(f.reqs, req)
	if f.panics {
		panic("boom")
	}
	if f.delay > 0 {
		if f.ignoresCtx {
			time.Sleep(f.delay)
		} else {
			select {
			case <-time.After(f.delay):
			case <-ctx.Done():
				return contractx.AgentResponse{}, ctx.Err()
			}
		}
	}
	if f.err != nil {
		return contractx.AgentResponse{}, f.err
	}
	return contractx.AgentResponse{
		Contribution: f.reply,
		Metadata:     f.metadata,
	}, nil
}

type fakeRegistry struct {
	agents map[contractx.Intent]contractx.Agent
}

func (f *fakeRegistry) AgentFor(i contractx.Intent) (contractx.Agent, bool) {
	a, ok := f.agents[i]
	return a, ok
}

func TestExecuteParallelKeepsPlanOrder(t *testing.T) {
	t.Parallel()

	slow := &fakeAgent{name: "policy_agent", reply: "policy answer", delay: 30 * time.Millisecond}
	fast := &fakeAgent{name: "service_agent", reply: "pricing answer"}
	e := NewExecutor(&fakeRegistry{agents: map[contractx.Intent]contractx.Agent{
		contractx.IntentPolicyInquiry:  slow,
		contractx.IntentPricingInquiry: fast,
	}}, ExecutorConfig{AgentTimeout: time.Second})

	plan := contractx.ExecutionPlan{Independent: []contractx.IntentResult{
		result(contractx.IntentPolicyInquiry),
		result(contractx.IntentPricingInquiry),
	}}

	responses, merged, err := e.Execute(context.Background(), plan, contractx.AgentRequest{Message: "m"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("responses = %+v", responses)
	}
	// merged reply follows the plan order even though the fast agent
	// finished first
	if responses[0].Intent != contractx.IntentPolicyInquiry {
		t.Fatalf("responses[0].Intent = %s", responses[0].Intent)
	}
	if !strings.HasPrefix(merged, "policy answer") {
		t.Fatalf("merged = %q", merged)
	}
	if !strings.Contains(merged, "pricing answer") {
		t.Fatalf("merged = %q", merged)
	}
	for _, r := range responses {
		if !r.Succeeded {
			t.Fatalf("response failed: %+v", r)
		}
		if r.ElapsedMS < 1 {
			t.Fatalf("elapsed not recorded: %+v", r)
		}
	}
}

func TestExecutePartialFailure(t *testing.T) {
	t.Parallel()

	e := NewExecutor(&fakeRegistry{agents: map[contractx.Intent]contractx.Agent{
		contractx.IntentPolicyInquiry:  &fakeAgent{name: "policy_agent", reply: "policy answer"},
		contractx.IntentPricingInquiry: &fakeAgent{name: "service_agent", err: errors.New("backend down")},
	}}, ExecutorConfig{})

	plan := contractx.ExecutionPlan{Independent: []contractx.IntentResult{
		result(contractx.IntentPolicyInquiry),
		result(contractx.IntentPricingInquiry),
	}}

	responses, merged, err := e.Execute(context.Background(), plan, contractx.AgentRequest{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !responses[0].Succeeded || responses[1].Succeeded {
		t.Fatalf("responses = %+v", responses)
	}
	if !strings.Contains(merged, "policy answer") {
		t.Fatalf("merged = %q", merged)
	}
	if !strings.Contains(merged, "couldn't complete the pricing inquiry part") {
		t.Fatalf("failure note missing: %q", merged)
	}
}

func TestExecuteAllFailed(t *testing.T) {
	t.Parallel()

	e := NewExecutor(&fakeRegistry{agents: map[contractx.Intent]contractx.Agent{
		contractx.IntentPolicyInquiry: &fakeAgent{name: "policy_agent", err: errors.New("down")},
	}}, ExecutorConfig{})

	plan := contractx.ExecutionPlan{Independent: []contractx.IntentResult{
		result(contractx.IntentPolicyInquiry),
	}}

	_, merged, err := e.Execute(context.Background(), plan, contractx.AgentRequest{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if merged != allFailedReply {
		t.Fatalf("merged = %q", merged)
	}
}

func TestExecuteAgentTimeout(t *testing.T) {
	t.Parallel()

	e := NewExecutor(&fakeRegistry{agents: map[contractx.Intent]contractx.Agent{
		contractx.IntentPolicyInquiry: &fakeAgent{name: "policy_agent", delay: time.Second},
	}}, ExecutorConfig{AgentTimeout: 20 * time.Millisecond})

	plan := contractx.ExecutionPlan{Independent: []contractx.IntentResult{
		result(contractx.IntentPolicyInquiry),
	}}

	responses, _, err := e.Execute(context.Background(), plan, contractx.AgentRequest{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if responses[0].Succeeded {
		t.Fatal("timed-out agent reported success")
	}
	if responses[0].Error != contractx.ErrAgentTimeout.Error() {
		t.Fatalf("error = %q", responses[0].Error)
	}
}

func TestExecuteTimeoutOnContextIgnoringAgent(t *testing.T) {
	t.Parallel()

	e := NewExecutor(&fakeRegistry{agents: map[contractx.Intent]contractx.Agent{
		contractx.IntentPolicyInquiry: &fakeAgent{
			name:       "policy_agent",
			reply:      "late answer",
			delay:      300 * time.Millisecond,
			ignoresCtx: true,
		},
	}}, ExecutorConfig{AgentTimeout: 30 * time.Millisecond})

	plan := contractx.ExecutionPlan{Independent: []contractx.IntentResult{
		result(contractx.IntentPolicyInquiry),
	}}

	started := time.Now()
	responses, merged, err := e.Execute(context.Background(), plan, contractx.AgentRequest{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if elapsed := time.Since(started); elapsed > 200*time.Millisecond {
		t.Fatalf("turn blocked %v on an agent that ignores cancellation", elapsed)
	}
	if responses[0].Succeeded {
		t.Fatal("late result recorded as success")
	}
	if responses[0].Error != contractx.ErrAgentTimeout.Error() {
		t.Fatalf("error = %q", responses[0].Error)
	}
	if strings.Contains(merged, "late answer") {
		t.Fatalf("late contribution leaked into the merge: %q", merged)
	}
}

func TestExecuteAgentPanicIsContained(t *testing.T) {
	t.Parallel()

	e := NewExecutor(&fakeRegistry{agents: map[contractx.Intent]contractx.Agent{
		contractx.IntentPolicyInquiry:  &fakeAgent{name: "policy_agent", panics: true},
		contractx.IntentPricingInquiry: &fakeAgent{name: "service_agent", reply: "still here"},
	}}, ExecutorConfig{})

	plan := contractx.ExecutionPlan{Independent: []contractx.IntentResult{
		result(contractx.IntentPolicyInquiry),
		result(contractx.IntentPricingInquiry),
	}}

	responses, merged, err := e.Execute(context.Background(), plan, contractx.AgentRequest{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if responses[0].Succeeded {
		t.Fatal("panicked agent reported success")
	}
	if !strings.Contains(responses[0].Error, "panicked") {
		t.Fatalf("error = %q", responses[0].Error)
	}
	if !strings.Contains(merged, "still here") {
		t.Fatalf("sibling agent result lost: %q", merged)
	}
}

func TestExecuteMissingAgent(t *testing.T) {
	t.Parallel()

	e := NewExecutor(&fakeRegistry{agents: map[contractx.Intent]contractx.Agent{}}, ExecutorConfig{})

	plan := contractx.ExecutionPlan{Independent: []contractx.IntentResult{
		result(contractx.IntentDataQuery),
	}}

	responses, _, err := e.Execute(context.Background(), plan, contractx.AgentRequest{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if responses[0].Succeeded || responses[0].Error != contractx.ErrNoAgent.Error() {
		t.Fatalf("responses = %+v", responses)
	}
}

func TestExecuteForwardsContextToDependents(t *testing.T) {
	t.Parallel()

	cancelAgent := &fakeAgent{
		name:     "cancellation_agent",
		reply:    "cancelled",
		metadata: map[string]any{"booking_id": "BK1234"},
	}
	complaintAgent := &fakeAgent{name: "complaint_agent", reply: "complaint filed"}

	e := NewExecutor(&fakeRegistry{agents: map[contractx.Intent]contractx.Agent{
		contractx.IntentCancellation: cancelAgent,
		contractx.IntentComplaint:    complaintAgent,
	}}, ExecutorConfig{})

	plan := contractx.ExecutionPlan{
		Independent: []contractx.IntentResult{result(contractx.IntentCancellation)},
		Dependent: []contractx.DependentIntent{{
			Result:    result(contractx.IntentComplaint),
			DependsOn: []contractx.Intent{contractx.IntentCancellation},
		}},
	}

	responses, merged, err := e.Execute(context.Background(), plan, contractx.AgentRequest{Message: "m"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(responses) != 2 || !responses[1].Succeeded {
		t.Fatalf("responses = %+v", responses)
	}

	if len(complaintAgent.reqs) != 1 {
		t.Fatalf("complaint agent calls = %d", len(complaintAgent.reqs))
	}
	got := complaintAgent.reqs[0].Context["cancellation.booking_id"]
	if got != "BK1234" {
		t.Fatalf("forwarded context = %v", complaintAgent.reqs[0].Context)
	}
	if !strings.Contains(merged, "cancelled") || !strings.Contains(merged, "complaint filed") {
		t.Fatalf("merged = %q", merged)
	}
}

func TestExecuteSkipsDependentWhenPrerequisiteFailed(t *testing.T) {
	t.Parallel()

	complaintAgent := &fakeAgent{name: "complaint_agent", reply: "complaint filed"}
	e := NewExecutor(&fakeRegistry{agents: map[contractx.Intent]contractx.Agent{
		contractx.IntentCancellation: &fakeAgent{name: "cancellation_agent", err: errors.New("down")},
		contractx.IntentComplaint:    complaintAgent,
	}}, ExecutorConfig{})

	plan := contractx.ExecutionPlan{
		Independent: []contractx.IntentResult{result(contractx.IntentCancellation)},
		Dependent: []contractx.DependentIntent{{
			Result:    result(contractx.IntentComplaint),
			DependsOn: []contractx.Intent{contractx.IntentCancellation},
		}},
	}

	responses, _, err := e.Execute(context.Background(), plan, contractx.AgentRequest{})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(complaintAgent.reqs) != 0 {
		t.Fatal("dependent agent ran despite a failed prerequisite")
	}
	if responses[1].Succeeded || !strings.Contains(responses[1].Error, "prerequisite failed") {
		t.Fatalf("responses[1] = %+v", responses[1])
	}
}

func TestExecuteEmptyPlan(t *testing.T) {
	t.Parallel()

	e := NewExecutor(&fakeRegistry{}, ExecutorConfig{})
	_, _, err := e.Execute(context.Background(), contractx.ExecutionPlan{}, contractx.AgentRequest{})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("Execute() error = %v, want ErrValidation", err)
	}
}

func TestExecuteSequentialFallback(t *testing.T) {
	t.Parallel()

	e := NewExecutor(&fakeRegistry{agents: map[contractx.Intent]contractx.Agent{
		contractx.IntentPolicyInquiry:  &fakeAgent{name: "policy_agent", reply: "policy answer"},
		contractx.IntentPricingInquiry: &fakeAgent{name: "service_agent", reply: "pricing answer"},
	}}, ExecutorConfig{})

	responses, merged := e.ExecuteSequential(context.Background(), []contractx.IntentResult{
		result(contractx.IntentPolicyInquiry),
		result(contractx.IntentPricingInquiry),
	}, contractx.AgentRequest{})

	if len(responses) != 2 {
		t.Fatalf("responses = %+v", responses)
	}
	for i, r := range responses {
		if !r.Succeeded || r.OrderIndex != i {
			t.Fatalf("responses[%d] = %+v", i, r)
		}
	}
	if merged != "policy answer\n\npricing answer" {
		t.Fatalf("merged = %q", merged)
	}
}
