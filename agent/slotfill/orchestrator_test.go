package slotfill

import (
	"context"
	"strings"
	"testing"
	"time"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
	entityx "github.com/shaonidutta/convergeai/agent/entity"
	intentx "github.com/shaonidutta/convergeai/agent/intent"
	questionx "github.com/shaonidutta/convergeai/agent/question"
	statex "github.com/shaonidutta/convergeai/agent/state"
)

// Wednesday morning.
var turnNow = time.Date(2025, time.June, 11, 10, 0, 0, 0, time.UTC)

// fakeCatalog mimics the marketplace catalog: "ac" resolves cleanly,
// "painting" is an ambiguous parent until narrowed.
type fakeCatalog struct{}

func (fakeCatalog) IsServiceable(_ context.Context, pincode string) (bool, error) {
	return pincode == "110001", nil
}

func (fakeCatalog) ResolveServiceType(_ context.Context, text string) (contractx.ServiceResolution, error) {
	needle := strings.ToLower(text)
	switch {
	case strings.Contains(needle, "interior"):
		return contractx.ServiceResolution{Category: "painting/interior_painting", Matched: true}, nil
	case strings.Contains(needle, "painting"):
		return contractx.ServiceResolution{
			Category:  "painting",
			Matched:   true,
			Ambiguous: true,
			Options:   []string{"exterior_painting", "interior_painting"},
		}, nil
	case strings.Contains(needle, "ac"):
		return contractx.ServiceResolution{Category: "ac_service", Matched: true}, nil
	}
	return contractx.ServiceResolution{}, nil
}

func newTestOrchestrator() *Orchestrator {
	cat := fakeCatalog{}
	extractor := entityx.NewExtractor(cat, nil)
	classifier := intentx.NewClassifier(intentx.Config{}, extractor, nil)
	validator := entityx.NewValidator(cat, 0).WithClock(func() time.Time { return turnNow })
	return New(Config{}, classifier, extractor, validator, questionx.NewGenerator())
}

func newSession() *statex.DialogState {
	return statex.NewDialogState("s1", "u1", "web", turnNow)
}

func mustValidate(t *testing.T, st *statex.DialogState) {
	t.Helper()
	if err := st.Validate(); err != nil {
		t.Fatalf("state invariant broken: %v", err)
	}
}

func TestIncrementalBookingFlow(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()
	ctx := context.Background()

	res := o.Turn(ctx, st, "I want to book an ac service at 110001", turnNow)
	if res.Outcome != OutcomeAsk {
		t.Fatalf("turn 1 outcome = %s, reply %q", res.Outcome, res.Reply)
	}
	if st.ActiveIntent != contractx.IntentBookingManagement {
		t.Fatalf("active intent = %s", st.ActiveIntent)
	}
	if st.Collected[contractx.EntityServiceType] != "ac_service" {
		t.Fatalf("service not lifted from first message: %v", st.Collected)
	}
	// an offered pincode is kept even though booking does not demand one
	if st.Collected[contractx.EntityPincode] != "110001" {
		t.Fatalf("pincode not lifted from first message: %v", st.Collected)
	}
	if st.ExpectedEntity != contractx.EntityDate {
		t.Fatalf("expected entity = %s", st.ExpectedEntity)
	}
	mustValidate(t, st)

	res = o.Turn(ctx, st, "tomorrow", turnNow)
	if res.Outcome != OutcomeAsk {
		t.Fatalf("turn 2 outcome = %s", res.Outcome)
	}
	if st.Collected[contractx.EntityDate] != "2025-06-12" {
		t.Fatalf("date = %q", st.Collected[contractx.EntityDate])
	}
	mustValidate(t, st)

	res = o.Turn(ctx, st, "3pm", turnNow)
	if res.Outcome != OutcomeConfirm {
		t.Fatalf("turn 3 outcome = %s, reply %q", res.Outcome, res.Reply)
	}
	if st.Collected[contractx.EntityTime] != "15:00" {
		t.Fatalf("time = %q", st.Collected[contractx.EntityTime])
	}
	if !st.AwaitingConfirmation {
		t.Fatal("not awaiting confirmation after the last slot")
	}
	mustValidate(t, st)

	res = o.Turn(ctx, st, "yes", turnNow)
	if res.Outcome != OutcomeReady {
		t.Fatalf("turn 4 outcome = %s", res.Outcome)
	}
	if len(res.Results) != 1 || res.Results[0].Intent != contractx.IntentBookingManagement {
		t.Fatalf("results = %+v", res.Results)
	}
	got := res.Results[0].Entities
	for _, want := range []struct {
		t contractx.EntityType
		v string
	}{
		{contractx.EntityServiceType, "ac_service"},
		{contractx.EntityDate, "2025-06-12"},
		{contractx.EntityTime, "15:00"},
		{contractx.EntityPincode, "110001"},
	} {
		if got[want.t] != want.v {
			t.Fatalf("entity %s = %q, want %q", want.t, got[want.t], want.v)
		}
	}
}

func TestSingleTurnBookingConfirms(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()
	ctx := context.Background()

	// every slot in one message: no clarifying question, straight to
	// confirmation
	res := o.Turn(ctx, st, "book ac service tomorrow 4pm", turnNow)
	if res.Outcome != OutcomeConfirm {
		t.Fatalf("outcome = %s, reply %q", res.Outcome, res.Reply)
	}
	if !st.AwaitingConfirmation {
		t.Fatal("not awaiting confirmation")
	}
	if st.Collected[contractx.EntityServiceType] != "ac_service" ||
		st.Collected[contractx.EntityDate] != "2025-06-12" ||
		st.Collected[contractx.EntityTime] != "16:00" {
		t.Fatalf("collected = %v", st.Collected)
	}
	if len(st.Needed) != 0 {
		t.Fatalf("needed = %v", st.Needed)
	}
	mustValidate(t, st)

	res = o.Turn(ctx, st, "yes", turnNow)
	if res.Outcome != OutcomeReady {
		t.Fatalf("confirmed outcome = %s", res.Outcome)
	}
	if len(res.Results) != 1 || res.Results[0].Intent != contractx.IntentBookingManagement {
		t.Fatalf("results = %+v", res.Results)
	}
}

func TestAmbiguousServiceNarrowed(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()
	ctx := context.Background()

	res := o.Turn(ctx, st, "book a painting service", turnNow)
	if res.Outcome != OutcomeAsk {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if !strings.Contains(res.Reply, "interior_painting") || !strings.Contains(res.Reply, "exterior_painting") {
		t.Fatalf("disambiguation options not offered: %q", res.Reply)
	}
	mustValidate(t, st)

	res = o.Turn(ctx, st, "interior painting", turnNow)
	if res.Outcome != OutcomeAsk {
		t.Fatalf("outcome = %s, reply %q", res.Outcome, res.Reply)
	}
	if st.Collected[contractx.EntityServiceType] != "painting/interior_painting" {
		t.Fatalf("service = %q", st.Collected[contractx.EntityServiceType])
	}
	mustValidate(t, st)
}

func TestPastDateRejectedWithReason(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()
	ctx := context.Background()

	o.Turn(ctx, st, "book an ac service", turnNow)
	res := o.Turn(ctx, st, "2025-06-01", turnNow)

	if res.Outcome != OutcomeAsk {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if !strings.Contains(res.Reply, "past date") {
		t.Fatalf("rejection reason not restated: %q", res.Reply)
	}
	if _, ok := st.Collected[contractx.EntityDate]; ok {
		t.Fatal("invalid date stored")
	}
	if st.FailedAttempts[contractx.EntityDate] != 1 {
		t.Fatalf("failure count = %d", st.FailedAttempts[contractx.EntityDate])
	}
	mustValidate(t, st)
}

func TestRepeatedFailureRotatesPhrasing(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()
	ctx := context.Background()

	o.Turn(ctx, st, "book an ac service", turnNow)

	first := o.Turn(ctx, st, "hmm", turnNow)
	second := o.Turn(ctx, st, "dunno", turnNow)
	if first.Outcome != OutcomeAsk || second.Outcome != OutcomeAsk {
		t.Fatalf("outcomes = %s, %s", first.Outcome, second.Outcome)
	}
	if first.Reply == second.Reply {
		t.Fatalf("question not rephrased after repeated failures: %q", first.Reply)
	}
}

func TestConfirmationRejectionOpensCorrection(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()
	ctx := context.Background()

	o.Turn(ctx, st, "book an ac service", turnNow)
	o.Turn(ctx, st, "tomorrow", turnNow)
	res := o.Turn(ctx, st, "3pm", turnNow)
	if res.Outcome != OutcomeConfirm {
		t.Fatalf("setup failed, outcome = %s", res.Outcome)
	}

	res = o.Turn(ctx, st, "no, make it friday", turnNow)
	if res.Outcome != OutcomeConfirm {
		t.Fatalf("corrected turn outcome = %s, reply %q", res.Outcome, res.Reply)
	}
	if st.Collected[contractx.EntityDate] != "2025-06-13" {
		t.Fatalf("date not corrected: %q", st.Collected[contractx.EntityDate])
	}
	if !strings.Contains(res.Reply, "2025-06-13") {
		t.Fatalf("re-confirmation should show the new date: %q", res.Reply)
	}
	mustValidate(t, st)

	res = o.Turn(ctx, st, "yes", turnNow)
	if res.Outcome != OutcomeReady {
		t.Fatalf("final outcome = %s", res.Outcome)
	}
}

func TestConfirmationRejectionWithoutCorrection(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()
	ctx := context.Background()

	o.Turn(ctx, st, "book an ac service", turnNow)
	o.Turn(ctx, st, "tomorrow", turnNow)
	o.Turn(ctx, st, "3pm", turnNow)

	res := o.Turn(ctx, st, "no", turnNow)
	if res.Outcome != OutcomeAsk {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if st.AwaitingConfirmation {
		t.Fatal("still awaiting confirmation after a rejection")
	}
	if !strings.Contains(res.Reply, "nothing is booked") {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestMultiIntentTurn(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()
	ctx := context.Background()

	res := o.Turn(ctx, st, "cancel booking BK1234 and I want to complain about the technician", turnNow)
	if res.Outcome != OutcomeConfirm {
		t.Fatalf("outcome = %s, reply %q", res.Outcome, res.Reply)
	}
	if len(st.PendingIntents) != 2 {
		t.Fatalf("pending intents = %v", st.PendingIntents)
	}
	if st.Collected[contractx.EntityBookingID] != "BK1234" {
		t.Fatalf("booking id = %q", st.Collected[contractx.EntityBookingID])
	}

	res = o.Turn(ctx, st, "yes", turnNow)
	if res.Outcome != OutcomeReady {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if len(res.Results) != 2 {
		t.Fatalf("results = %+v", res.Results)
	}
	for _, r := range res.Results {
		if r.Entities[contractx.EntityBookingID] != "BK1234" {
			t.Fatalf("result %s missing booking id: %v", r.Intent, r.Entities)
		}
	}
}

func TestUnclearMidFlowNudgesBack(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()
	ctx := context.Background()

	o.Turn(ctx, st, "book an ac service", turnNow)
	o.Turn(ctx, st, "tomorrow", turnNow)
	// asking for a time now; a long vague message must nudge, not reset
	res := o.Turn(ctx, st, "whatever you think would work best honestly", turnNow)

	if res.Outcome != OutcomeAsk {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if !strings.Contains(res.Reply, "didn't follow") {
		t.Fatalf("reply = %q", res.Reply)
	}
	if st.ActiveIntent != contractx.IntentBookingManagement {
		t.Fatalf("active intent lost: %s", st.ActiveIntent)
	}
}

func TestGreetingIsDirect(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()

	res := o.Turn(context.Background(), st, "hi", turnNow)
	if res.Outcome != OutcomeDirect {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if res.Intent != contractx.IntentGreeting {
		t.Fatalf("intent = %s", res.Intent)
	}
	if st.ActiveIntent != "" {
		t.Fatalf("greeting must not open a topic, active = %s", st.ActiveIntent)
	}
}

func TestUnclearFirstMessageClarifies(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()

	res := o.Turn(context.Background(), st, "the blue one from before maybe", turnNow)
	if res.Outcome != OutcomeDirect {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if res.Intent != contractx.IntentUnclear {
		t.Fatalf("intent = %s", res.Intent)
	}
}

func TestTurnRecoversFromPanic(t *testing.T) {
	t.Parallel()

	// nil classifier forces a panic inside the turn
	o := New(Config{}, nil, nil, nil, questionx.NewGenerator())
	st := newSession()

	res := o.Turn(context.Background(), st, "book something", turnNow)
	if res.Outcome != OutcomeDirect {
		t.Fatalf("outcome = %s", res.Outcome)
	}
	if !strings.Contains(res.Reply, "rephrase") {
		t.Fatalf("reply = %q", res.Reply)
	}
}

func TestEntityCarryoverAcrossIntents(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator()
	st := newSession()
	ctx := context.Background()

	// pricing inquiry collects the service type
	res := o.Turn(ctx, st, "how much does an ac service cost", turnNow)
	if res.Outcome != OutcomeReady {
		t.Fatalf("pricing outcome = %s, reply %q", res.Outcome, res.Reply)
	}

	// a later booking for the same session skips the service question
	st.ResetIntent()
	res = o.Turn(ctx, st, "ok book it", turnNow)
	if res.Outcome != OutcomeAsk {
		t.Fatalf("booking outcome = %s", res.Outcome)
	}
	if st.ExpectedEntity != contractx.EntityDate {
		t.Fatalf("should ask for date first, asked for %s", st.ExpectedEntity)
	}
	if st.Collected[contractx.EntityServiceType] != "ac_service" {
		t.Fatalf("service carryover lost: %v", st.Collected)
	}
}
