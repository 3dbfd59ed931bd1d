package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

// ErrUnavailable is returned when the breaker is open or the limiter
// refuses the call. Callers treat it like any other model failure and
// degrade to their pattern/fallback tiers.
var ErrUnavailable = errors.New("llm temporarily unavailable")

type GuardConfig struct {
	RatePerSecond    float64       `envconfig:"RATE_PER_SECOND" split_words:"true" default:"10"`
	Burst            int           `envconfig:"BURST" split_words:"true" default:"20"`
	BreakerThreshold uint32        `envconfig:"BREAKER_THRESHOLD" split_words:"true" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"BREAKER_COOLDOWN" split_words:"true" default:"30s"`
}

// Guard wraps every model invocation with a rate limiter and a circuit
// breaker so a flapping or rate-limited provider turns into a fast local
// error instead of a pile-up of slow failing calls.
type Guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

func NewGuard(cfg GuardConfig) *Guard {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.BreakerThreshold == 0 {
		cfg.BreakerThreshold = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = 30 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "llm",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("llm breaker state change")
		},
	})

	return &Guard{
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		breaker: breaker,
	}
}

// Do runs fn under the limiter and breaker. A nil Guard is a passthrough.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if g == nil {
		return fn(ctx)
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_, err := g.breaker.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return nil
}
