package coordinator

import (
	"context"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
	dispatchx "github.com/shaonidutta/convergeai/agent/dispatch"
	slotfillx "github.com/shaonidutta/convergeai/agent/slotfill"
	statex "github.com/shaonidutta/convergeai/agent/state"
)

type Config struct {
	ChannelType string `envconfig:"CHANNEL_TYPE" split_words:"true" default:"web"`
}

// TurnPublisher receives a fire-and-forget event after every completed
// turn. A nil publisher disables turn events.
type TurnPublisher interface {
	PublishTurn(ctx context.Context, event TurnEvent) error
}

// TurnEvent is the analytics record emitted per turn.
type TurnEvent struct {
	SessionID  string    `json:"session_id"`
	UserID     string    `json:"user_id,omitempty"`
	Intent     string    `json:"intent"`
	Confidence float64   `json:"confidence"`
	AgentsUsed []string  `json:"agents_used,omitempty"`
	TurnCount  int       `json:"turn_count"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Coordinator is the turn entrypoint. It owns the per-turn pipeline:
// load state, slot-fill, resolve and execute the plan, persist, respond.
// A turn never raises; every failure mode degrades to a well-formed reply.
type Coordinator struct {
	store       statex.Store
	slotfill    *slotfillx.Orchestrator
	resolver    *dispatchx.Resolver
	executor    *dispatchx.Executor
	publisher   TurnPublisher
	channelType string
	now         func() time.Time

	runner compose.Runnable[graphInput, contractx.TurnResponse]
}

type Option func(*Coordinator)

// WithTurnPublisher enables turn events on the given publisher.
func WithTurnPublisher(p TurnPublisher) Option {
	return func(o *Coordinator) { o.publisher = p }
}

// WithClock overrides the wall clock, used by tests.
func WithClock(now func() time.Time) Option {
	return func(o *Coordinator) { o.now = now }
}

func New(
	ctx context.Context,
	cfg Config,
	store statex.Store,
	slotfill *slotfillx.Orchestrator,
	resolver *dispatchx.Resolver,
	executor *dispatchx.Executor,
	opts ...Option,
) (*Coordinator, error) {
	o := &Coordinator{
		store:       store,
		slotfill:    slotfill,
		resolver:    resolver,
		executor:    executor,
		channelType: cfg.ChannelType,
		now:         time.Now,
	}
	if o.channelType == "" {
		o.channelType = "web"
	}
	for _, opt := range opts {
		opt(o)
	}

	runner, err := o.compileHandleMessageGraph(ctx)
	if err != nil {
		return nil, err
	}
	o.runner = runner
	return o, nil
}

// HandleMessage runs one full turn. The returned response is always
// well-formed: pipeline errors and panics become an apology reply, and
// the session's saved state is left as it was before the turn.
func (o *Coordinator) HandleMessage(ctx context.Context, sessionID, userID, text string) (resp contractx.TurnResponse) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).
				Str("session_id", sessionID).
				Msg("turn pipeline panicked")
			resp = apologyResponse()
		}
	}()

	out, err := o.runner.Invoke(ctx, graphInput{
		SessionID: sessionID,
		UserID:    userID,
		Text:      text,
	})
	if err != nil {
		log.Error().Err(err).
			Str("session_id", sessionID).
			Msg("turn pipeline failed")
		return apologyResponse()
	}
	return out
}

func apologyResponse() contractx.TurnResponse {
	return contractx.TurnResponse{
		Reply:      dispatchFallbackReply,
		Intent:     contractx.IntentUnclear,
		Confidence: 0,
	}
}

func (o *Coordinator) publishTurn(ctx context.Context, in *graphState, resp contractx.TurnResponse) {
	if o.publisher == nil {
		return
	}
	event := TurnEvent{
		SessionID:  in.SessionID,
		UserID:     in.UserID,
		Intent:     string(resp.Intent),
		Confidence: resp.Confidence,
		AgentsUsed: resp.AgentsUsed,
		TurnCount:  in.State.TurnCount,
		OccurredAt: in.Now,
	}
	go func() {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := o.publisher.PublishTurn(pubCtx, event); err != nil {
			log.Warn().Err(err).
				Str("session_id", event.SessionID).
				Msg("publishing turn event failed")
		}
	}()
}
