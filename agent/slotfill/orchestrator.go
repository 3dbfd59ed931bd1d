package slotfill

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
	entityx "github.com/shaonidutta/convergeai/agent/entity"
	intentx "github.com/shaonidutta/convergeai/agent/intent"
	questionx "github.com/shaonidutta/convergeai/agent/question"
	statex "github.com/shaonidutta/convergeai/agent/state"
)

// Outcome is the terminal result of one conversational turn.
type Outcome string

const (
	// OutcomeAsk means the dialog continues with a clarifying question.
	OutcomeAsk Outcome = "ask"
	// OutcomeConfirm means every slot is filled and the user must approve.
	OutcomeConfirm Outcome = "confirm"
	// OutcomeReady means the turn hands off to agent execution.
	OutcomeReady Outcome = "ready"
	// OutcomeDirect means the orchestrator answered by itself (greeting,
	// clarification) and no agent runs.
	OutcomeDirect Outcome = "direct"
)

// TurnResult is what one orchestrated turn produces: either reply text for
// the user or a ready signal carrying everything agent execution needs.
type TurnResult struct {
	Outcome    Outcome
	Reply      string
	Intent     contractx.Intent
	Confidence float64
	// Results holds the classified intents to execute when Outcome is
	// OutcomeReady, with the full collected entity set attached.
	Results []contractx.IntentResult
}

type Config struct {
	// FollowUpThreshold is the minimum confidence for treating a message
	// as an answer to the previous question instead of a new topic.
	FollowUpThreshold float64 `envconfig:"FOLLOW_UP_THRESHOLD" split_words:"true" default:"0.6"`
	// RephraseAfter is how many consecutive extraction or validation
	// failures on one entity trigger a rephrased question.
	RephraseAfter int `envconfig:"REPHRASE_AFTER" split_words:"true" default:"2"`
}

func (c *Config) normalize() {
	if c.FollowUpThreshold <= 0 || c.FollowUpThreshold > 1 {
		c.FollowUpThreshold = 0.6
	}
	if c.RephraseAfter <= 0 {
		c.RephraseAfter = 2
	}
}

var (
	affirmativePattern = regexp.MustCompile(`(?i)^\s*(yes|yep|yeah|sure|ok(ay)?|confirm(ed)?|go ahead|sounds good|please do|haan|y)\s*[!.]*\s*$`)
	negativePattern    = regexp.MustCompile(`(?i)^\s*(no|nope|nah|wait|stop|don'?t|not yet|change|wrong)\b`)
)

// Orchestrator drives the slot-filling state machine for a single session
// turn. It owns every mutation of DialogState.
type Orchestrator struct {
	cfg        Config
	classifier *intentx.Classifier
	extractor  *entityx.Extractor
	validator  *entityx.Validator
	questions  *questionx.Generator
}

func New(
	cfg Config,
	classifier *intentx.Classifier,
	extractor *entityx.Extractor,
	validator *entityx.Validator,
	questions *questionx.Generator,
) *Orchestrator {
	cfg.normalize()
	return &Orchestrator{
		cfg:        cfg,
		classifier: classifier,
		extractor:  extractor,
		validator:  validator,
		questions:  questions,
	}
}

// FollowUp decides whether message answers the previously asked question.
// True requires outstanding entities and no high-confidence new intent in
// the message; confidence reflects how much the message looks like a bare
// answer versus an open-ended statement.
func (o *Orchestrator) FollowUp(
	ctx context.Context,
	st *statex.DialogState,
	message string,
) (bool, float64, contractx.EntityType) {
	if st == nil || len(st.Needed) == 0 {
		return false, 0, ""
	}
	expected := st.ExpectedEntity
	if expected == "" {
		expected = st.Needed[0]
	}

	if _, confident := o.classifier.PatternTop(ctx, message); confident {
		return false, 0, expected
	}

	words := len(strings.Fields(message))
	if _, ok := o.extractor.Pattern(ctx, message, expected); ok {
		if words <= 6 {
			return true, 0.95, expected
		}
		return true, 0.85, expected
	}
	if words <= 3 {
		// short reply with no pattern match: likely an answer the model
		// tier can still extract
		return true, 0.7, expected
	}
	return false, 0.4, expected
}

// Turn runs one full conversational turn against the dialog state. It never
// panics outward and never leaves Collected and Needed overlapping.
func (o *Orchestrator) Turn(ctx context.Context, st *statex.DialogState, message string, now time.Time) TurnResult {
	st.EnsureMaps()
	st.TurnCount++
	st.AppendTurn("user", message, now)

	var res TurnResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).
					Str("session_id", st.SessionID).
					Msg("slot filling turn panicked")
				res = TurnResult{
					Outcome: OutcomeDirect,
					Reply:   "Something went wrong on my side. Could you rephrase that?",
					Intent:  st.ActiveIntent,
				}
			}
		}()
		res = o.turn(ctx, st, message)
	}()

	st.AppendTurn("assistant", res.Reply, now)
	st.Touch(now)
	return res
}

func (o *Orchestrator) turn(ctx context.Context, st *statex.DialogState, message string) TurnResult {
	if st.AwaitingConfirmation {
		return o.handleConfirmation(ctx, st, message)
	}

	// correction window after a rejected confirmation: slots full, intent
	// active, waiting for the user to say what changes
	if st.ActiveIntent != "" && len(st.Needed) == 0 && !st.AwaitingConfirmation {
		if _, confident := o.classifier.PatternTop(ctx, message); !confident {
			if handled, res := o.tryCorrection(ctx, st, message); handled {
				return res
			}
		}
	}

	if ok, conf, expected := o.FollowUp(ctx, st, message); ok && conf >= o.cfg.FollowUpThreshold {
		return o.handleFollowUp(ctx, st, message, expected)
	}

	return o.handleNewMessage(ctx, st, message)
}

func (o *Orchestrator) handleConfirmation(ctx context.Context, st *statex.DialogState, message string) TurnResult {
	trimmed := strings.TrimSpace(message)

	if affirmativePattern.MatchString(trimmed) {
		st.AwaitingConfirmation = false
		return o.ready(st)
	}

	if negativePattern.MatchString(trimmed) {
		st.AwaitingConfirmation = false
		if handled, res := o.tryCorrection(ctx, st, trimmed); handled {
			return res
		}
		return TurnResult{
			Outcome:    OutcomeAsk,
			Reply:      "Okay, nothing is booked yet. What should I change?",
			Intent:     st.ActiveIntent,
			Confidence: st.ActiveConfidence,
		}
	}

	// a correction phrased without a leading "no", e.g. "make it friday"
	if handled, res := o.tryCorrection(ctx, st, trimmed); handled {
		return res
	}

	st.AwaitingConfirmation = true
	return TurnResult{
		Outcome:    OutcomeConfirm,
		Reply:      "Just to be sure - " + o.questions.Confirmation(st.ActiveIntent, st.Collected),
		Intent:     st.ActiveIntent,
		Confidence: st.ActiveConfidence,
	}
}

// tryCorrection scans the message for a value of any already-collected
// entity type, re-validates it, and swaps it in.
func (o *Orchestrator) tryCorrection(ctx context.Context, st *statex.DialogState, message string) (bool, TurnResult) {
	for t := range st.Collected {
		ext, ok := o.extractor.Pattern(ctx, message, t)
		if !ok {
			continue
		}
		verdict := o.validator.Validate(ctx, t, ext.RawValue, st.Collected)
		if !verdict.Valid {
			q := o.questions.Ask(t, st.ActiveIntent, st.Collected, verdict.Reason, st.FailedAttempts[t])
			st.DropCollected(t)
			st.SetNeeded(append([]contractx.EntityType{t}, st.Needed...))
			st.ExpectedEntity = t
			st.LastQuestion = q
			return true, TurnResult{
				Outcome:    OutcomeAsk,
				Reply:      q,
				Intent:     st.ActiveIntent,
				Confidence: st.ActiveConfidence,
			}
		}
		st.AddEntity(t, verdict.Normalized)
		return true, o.determineNeeded(ctx, st)
	}
	return false, TurnResult{}
}

func (o *Orchestrator) handleFollowUp(
	ctx context.Context,
	st *statex.DialogState,
	message string,
	expected contractx.EntityType,
) TurnResult {
	dialogContext := make(map[string]string, len(st.Collected)+1)
	for k, v := range st.Collected {
		dialogContext[string(k)] = v
	}
	if st.ActiveIntent != "" {
		dialogContext["intent"] = string(st.ActiveIntent)
	}

	ext := o.extractor.ExtractFromFollowUp(ctx, message, expected, dialogContext)
	if ext.Empty() || ext.Confidence == 0 {
		return o.reask(st, expected, "")
	}

	verdict := o.validator.Validate(ctx, expected, ext.RawValue, st.Collected)
	if !verdict.Valid {
		return o.reask(st, expected, verdict.Reason)
	}

	st.AddEntity(expected, verdict.Normalized)
	return o.determineNeeded(ctx, st)
}

func (o *Orchestrator) reask(st *statex.DialogState, expected contractx.EntityType, reason string) TurnResult {
	attempts := st.RecordFailure(expected)
	variant := 0
	if attempts >= o.cfg.RephraseAfter {
		variant = attempts - o.cfg.RephraseAfter + 1
	}
	q := o.questions.Ask(expected, st.ActiveIntent, st.Collected, reason, variant)
	st.ExpectedEntity = expected
	st.LastQuestion = q
	return TurnResult{
		Outcome:    OutcomeAsk,
		Reply:      q,
		Intent:     st.ActiveIntent,
		Confidence: st.ActiveConfidence,
	}
}

func (o *Orchestrator) handleNewMessage(ctx context.Context, st *statex.DialogState, message string) TurnResult {
	results := o.classifier.Classify(ctx, message, st)
	top := results[0]

	switch top.Intent {
	case contractx.IntentUnclear:
		if len(st.Needed) > 0 && st.LastQuestion != "" {
			// mid slot filling: nudge back to the open question
			return TurnResult{
				Outcome:    OutcomeAsk,
				Reply:      "Sorry, I didn't follow. " + st.LastQuestion,
				Intent:     st.ActiveIntent,
				Confidence: st.ActiveConfidence,
			}
		}
		return TurnResult{
			Outcome: OutcomeDirect,
			Reply:   o.questions.Clarify(),
			Intent:  contractx.IntentUnclear,
		}
	case contractx.IntentGreeting:
		return TurnResult{
			Outcome:    OutcomeDirect,
			Reply:      "Hello! " + o.questions.Clarify(),
			Intent:     contractx.IntentGreeting,
			Confidence: top.Confidence,
		}
	}

	// new actionable topic: rebuild intent-scoped tracking, keep collected
	// entities for carryover
	st.ActiveIntent = top.Intent
	st.ActiveConfidence = top.Confidence
	st.ActiveMethod = top.Method
	st.PendingIntents = st.PendingIntents[:0]
	st.AwaitingConfirmation = false
	st.ExpectedEntity = ""
	st.LastQuestion = ""

	needed := make([]contractx.EntityType, 0, 4)
	seen := make(map[contractx.EntityType]bool, 4)
	for _, r := range results {
		if r.Intent == contractx.IntentUnclear || r.Intent == contractx.IntentGreeting {
			continue
		}
		st.PendingIntents = append(st.PendingIntents, r.Intent)
		for _, t := range intentx.RequiredEntities(r.Intent) {
			if !seen[t] {
				seen[t] = true
				needed = append(needed, t)
			}
		}

		// lift entities the classifier already found, validating each
		for t, raw := range r.Entities {
			if _, have := st.Collected[t]; have {
				continue
			}
			verdict := o.validator.Validate(ctx, t, raw, st.Collected)
			if verdict.Valid {
				st.AddEntity(t, verdict.Normalized)
			} else if seen[t] {
				// a required entity was present but invalid: surface the
				// reason instead of silently re-asking later
				st.SetNeeded(needed)
				return o.reask(st, t, verdict.Reason)
			}
		}
	}

	st.SetNeeded(needed)
	return o.determineNeeded(ctx, st)
}

// determineNeeded is the DETERMINING_NEEDED state: ask the next question,
// move to confirmation, or signal readiness.
func (o *Orchestrator) determineNeeded(ctx context.Context, st *statex.DialogState) TurnResult {
	if next, ok := st.NextNeeded(); ok {
		q := o.questions.Ask(next, st.ActiveIntent, st.Collected, "", 0)
		st.ExpectedEntity = next
		st.LastQuestion = q
		return TurnResult{
			Outcome:    OutcomeAsk,
			Reply:      q,
			Intent:     st.ActiveIntent,
			Confidence: st.ActiveConfidence,
		}
	}

	if o.anyNeedsConfirmation(st) && !st.AwaitingConfirmation {
		st.AwaitingConfirmation = true
		reply := o.questions.Confirmation(st.ActiveIntent, st.Collected)
		st.LastQuestion = reply
		return TurnResult{
			Outcome:    OutcomeConfirm,
			Reply:      reply,
			Intent:     st.ActiveIntent,
			Confidence: st.ActiveConfidence,
		}
	}

	st.AwaitingConfirmation = false
	return o.ready(st)
}

func (o *Orchestrator) anyNeedsConfirmation(st *statex.DialogState) bool {
	if len(st.PendingIntents) == 0 {
		return intentx.NeedsConfirmation(st.ActiveIntent)
	}
	for _, i := range st.PendingIntents {
		if intentx.NeedsConfirmation(i) {
			return true
		}
	}
	return false
}

// ready packages the pending intents with the full collected entity set
// for dependency resolution and agent execution.
func (o *Orchestrator) ready(st *statex.DialogState) TurnResult {
	pending := st.PendingIntents
	if len(pending) == 0 && st.ActiveIntent != "" {
		pending = []contractx.Intent{st.ActiveIntent}
	}

	results := make([]contractx.IntentResult, 0, len(pending))
	for _, intentTag := range pending {
		entities := make(map[contractx.EntityType]string, len(st.Collected))
		for k, v := range st.Collected {
			entities[k] = v
		}
		method := st.ActiveMethod
		if method == "" {
			method = contractx.MethodPattern
		}
		results = append(results, contractx.IntentResult{
			Intent:     intentTag,
			Confidence: st.ActiveConfidence,
			Entities:   entities,
			Method:     method,
		})
	}

	return TurnResult{
		Outcome:    OutcomeReady,
		Intent:     st.ActiveIntent,
		Confidence: st.ActiveConfidence,
		Results:    results,
	}
}
