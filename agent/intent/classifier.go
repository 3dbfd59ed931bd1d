package intent

import (
	"context"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
	entityx "github.com/shaonidutta/convergeai/agent/entity"
	statex "github.com/shaonidutta/convergeai/agent/state"
)

type Config struct {
	// PatternThreshold short-circuits the pipeline when the best pattern
	// match is at least this confident.
	PatternThreshold float64 `envconfig:"PATTERN_THRESHOLD" split_words:"true" default:"0.9"`
	// LLMThreshold accepts the model's classification when its best intent
	// is at least this confident.
	LLMThreshold float64 `envconfig:"LLM_THRESHOLD" split_words:"true" default:"0.7"`
	// MultiIntentFloor keeps secondary intents that score at least this
	// much alongside a confident top intent.
	MultiIntentFloor float64 `envconfig:"MULTI_INTENT_FLOOR" split_words:"true" default:"0.7"`
}

func (c *Config) normalize() {
	if c.PatternThreshold <= 0 || c.PatternThreshold > 1 {
		c.PatternThreshold = 0.9
	}
	if c.LLMThreshold <= 0 || c.LLMThreshold > 1 {
		c.LLMThreshold = 0.7
	}
	if c.MultiIntentFloor <= 0 || c.MultiIntentFloor > 1 {
		c.MultiIntentFloor = 0.7
	}
}

// ClassifyPayload is what the LLM tier receives.
type ClassifyPayload struct {
	Message      string            `json:"message"`
	History      []statex.Turn     `json:"history,omitempty"`
	ActiveIntent contractx.Intent  `json:"active_intent,omitempty"`
	Collected    map[string]string `json:"collected,omitempty"`
}

// LLMIntent is one intent in the model's structured reply.
type LLMIntent struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities,omitempty"`
}

// LLMClassification is the model's full structured reply.
type LLMClassification struct {
	Intents []LLMIntent `json:"intents"`
}

// LLMClassifier is the slow tier. Implemented by an llm.StructuredRunner in
// production and by fakes in tests.
type LLMClassifier interface {
	Classify(ctx context.Context, payload ClassifyPayload) (LLMClassification, error)
}

// Classifier maps raw text to intents with a pattern -> LLM -> fallback
// cascade. Classification never returns an error to the caller: every
// failure degrades to unclear_intent.
type Classifier struct {
	cfg       Config
	extractor *entityx.Extractor
	llm       LLMClassifier
}

func NewClassifier(cfg Config, extractor *entityx.Extractor, llm LLMClassifier) *Classifier {
	cfg.normalize()
	return &Classifier{cfg: cfg, extractor: extractor, llm: llm}
}

// Classify returns every intent the message expresses, best first.
func (c *Classifier) Classify(
	ctx context.Context,
	message string,
	st *statex.DialogState,
) []contractx.IntentResult {
	text := strings.TrimSpace(message)
	if text == "" {
		return fallbackResult()
	}

	// tier 1: patterns
	if results := c.patternPass(ctx, text); len(results) > 0 &&
		results[0].Confidence >= c.cfg.PatternThreshold {
		return results
	}

	// tier 2: model
	if c.llm != nil {
		payload := ClassifyPayload{Message: text}
		if st != nil {
			payload.History = st.RecentHistory(6)
			payload.ActiveIntent = st.ActiveIntent
			payload.Collected = make(map[string]string, len(st.Collected))
			for k, v := range st.Collected {
				payload.Collected[string(k)] = v
			}
		}

		out, err := c.llm.Classify(ctx, payload)
		if err != nil {
			log.Warn().Err(err).Msg("llm classification failed, falling through")
		} else if results := c.acceptLLM(out); len(results) > 0 {
			return results
		}
	}

	// tier 3: fallback, caller asks a clarifying question instead of acting
	return fallbackResult()
}

// PatternTop reports the single best pattern match and whether it clears
// the short-circuit threshold. The follow-up detector uses it to decide if
// a message opens a new topic rather than answering a question.
func (c *Classifier) PatternTop(ctx context.Context, text string) (contractx.IntentResult, bool) {
	results := c.patternPass(ctx, strings.TrimSpace(text))
	if len(results) == 0 {
		return contractx.IntentResult{}, false
	}
	return results[0], results[0].Confidence >= c.cfg.PatternThreshold
}

func (c *Classifier) patternPass(ctx context.Context, text string) []contractx.IntentResult {
	var scored []contractx.IntentResult
	for intentTag, rules := range patternRules {
		best := 0.0
		for _, rule := range rules {
			if rule.weight > best && rule.re.MatchString(text) {
				best = rule.weight
			}
		}
		if best > 0 {
			scored = append(scored, contractx.IntentResult{
				Intent:     intentTag,
				Confidence: best,
				Method:     contractx.MethodPattern,
			})
		}
	}
	if len(scored) == 0 {
		return nil
	}

	sortResults(scored)

	// keep the confident top plus any secondary intents over the floor
	kept := scored[:0]
	for i, r := range scored {
		if i == 0 || r.Confidence >= c.cfg.MultiIntentFloor {
			kept = append(kept, r)
		}
	}

	if c.extractor != nil {
		if entities := c.extractor.PatternAll(ctx, text); len(entities) > 0 {
			for i := range kept {
				own := make(map[contractx.EntityType]string, len(entities))
				for k, v := range entities {
					own[k] = v
				}
				kept[i].Entities = own
			}
		}
	}
	return kept
}

func (c *Classifier) acceptLLM(out LLMClassification) []contractx.IntentResult {
	results := make([]contractx.IntentResult, 0, len(out.Intents))
	for _, li := range out.Intents {
		tag := contractx.Intent(strings.TrimSpace(li.Intent))
		if !tag.Known() || tag == contractx.IntentUnclear {
			continue
		}
		entities := make(map[contractx.EntityType]string, len(li.Entities))
		for k, v := range li.Entities {
			entities[contractx.EntityType(k)] = v
		}
		results = append(results, contractx.IntentResult{
			Intent:     tag,
			Confidence: clamp01(li.Confidence),
			Entities:   entities,
			Method:     contractx.MethodLLM,
		})
	}
	if len(results) == 0 {
		return nil
	}
	sortResults(results)
	if results[0].Confidence < c.cfg.LLMThreshold {
		return nil
	}
	// drop trailing intents under the floor now that the list is sorted
	kept := results[:1]
	for _, r := range results[1:] {
		if r.Confidence >= c.cfg.MultiIntentFloor {
			kept = append(kept, r)
		}
	}
	return kept
}

func sortResults(rs []contractx.IntentResult) {
	sort.SliceStable(rs, func(i, j int) bool {
		return rs[i].Confidence > rs[j].Confidence
	})
}

func fallbackResult() []contractx.IntentResult {
	return []contractx.IntentResult{{
		Intent:     contractx.IntentUnclear,
		Confidence: 0,
		Method:     contractx.MethodFallback,
	}}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
