package entity

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

// LLMExtractor is the slow tier behind pattern extraction. Implemented by
// an llm.StructuredRunner in production and by fakes in tests.
type LLMExtractor interface {
	Extract(ctx context.Context, payload ExtractionPayload) (LLMExtraction, error)
}

type ExtractionPayload struct {
	EntityType contractx.EntityType `json:"entity_type"`
	Message    string               `json:"message"`
	Context    map[string]string    `json:"context,omitempty"`
}

type LLMExtraction struct {
	Found      bool    `json:"found"`
	RawValue   string  `json:"raw_value"`
	Confidence float64 `json:"confidence"`
}

const (
	patternConfidence = 0.95
	llmMinConfidence  = 0.5
)

// Extractor pulls typed values out of free text, cheapest tier first.
type Extractor struct {
	catalog contractx.Catalog
	llm     LLMExtractor
	now     func() time.Time
}

func NewExtractor(catalog contractx.Catalog, llm LLMExtractor) *Extractor {
	return &Extractor{
		catalog: catalog,
		llm:     llm,
		now:     time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (e *Extractor) WithClock(now func() time.Time) *Extractor {
	e.now = now
	return e
}

// ExtractFromFollowUp pulls the expected entity out of a follow-up reply.
// A zero-confidence empty result means "extraction failed, re-ask".
func (e *Extractor) ExtractFromFollowUp(
	ctx context.Context,
	message string,
	expected contractx.EntityType,
	dialogContext map[string]string,
) contractx.ExtractionResult {
	if res, ok := e.Pattern(ctx, message, expected); ok {
		return res
	}

	if e.llm != nil {
		out, err := e.llm.Extract(ctx, ExtractionPayload{
			EntityType: expected,
			Message:    message,
			Context:    dialogContext,
		})
		if err != nil {
			log.Warn().Err(err).
				Str("entity_type", string(expected)).
				Msg("llm extraction failed, treating as not found")
		} else if out.Found && strings.TrimSpace(out.RawValue) != "" && out.Confidence >= llmMinConfidence {
			return contractx.ExtractionResult{
				EntityType: expected,
				RawValue:   strings.TrimSpace(out.RawValue),
				Method:     contractx.MethodLLM,
				Confidence: out.Confidence,
			}
		}
	}

	return contractx.ExtractionResult{
		EntityType: expected,
		Method:     contractx.MethodFallback,
		Confidence: 0,
	}
}

// Pattern runs only the regex tier; the classifier uses it to lift entities
// out of a first-turn message without paying for a model call.
func (e *Extractor) Pattern(ctx context.Context, message string, t contractx.EntityType) (contractx.ExtractionResult, bool) {
	raw, ok := e.patternMatch(ctx, message, t)
	if !ok {
		return contractx.ExtractionResult{}, false
	}
	return contractx.ExtractionResult{
		EntityType: t,
		RawValue:   raw,
		Method:     contractx.MethodPattern,
		Confidence: patternConfidence,
	}, true
}

// PatternAll runs the regex tier for every entity type against one message.
func (e *Extractor) PatternAll(ctx context.Context, message string) map[contractx.EntityType]string {
	found := make(map[contractx.EntityType]string, 4)
	for _, t := range []contractx.EntityType{
		contractx.EntityServiceType,
		contractx.EntityDate,
		contractx.EntityTime,
		contractx.EntityPincode,
		contractx.EntityAmount,
		contractx.EntityBookingID,
	} {
		if raw, ok := e.patternMatch(ctx, message, t); ok {
			found[t] = raw
		}
	}
	return found
}

func (e *Extractor) patternMatch(ctx context.Context, message string, t contractx.EntityType) (string, bool) {
	text := strings.TrimSpace(message)
	if text == "" {
		return "", false
	}

	switch t {
	case contractx.EntityDate:
		if m := relativeDatePattern.FindString(text); m != "" {
			return m, true
		}
		if m := weekdayPattern.FindString(text); m != "" {
			return m, true
		}
		if m := numericDatePattern.FindString(text); m != "" {
			return m, true
		}
		if m := monthDatePattern.FindString(text); m != "" {
			return m, true
		}
	case contractx.EntityTime:
		if m := clockPattern.FindString(text); m != "" {
			return m, true
		}
		if m := clock24Pattern.FindString(text); m != "" {
			return m, true
		}
		if m := dayPartPattern.FindString(text); m != "" {
			return m, true
		}
	case contractx.EntityPincode:
		if m := pincodePattern.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	case contractx.EntityAmount:
		if m := amountPattern.FindStringSubmatch(text); m != nil {
			if m[1] != "" {
				return m[1], true
			}
			return m[2], true
		}
		if m := bareAmount.FindStringSubmatch(text); m != nil {
			return m[1], true
		}
	case contractx.EntityBookingID:
		if m := bookingIDPat.FindStringSubmatch(text); m != nil {
			if m[1] != "" {
				return "BK" + m[1], true
			}
			return strings.ToUpper(m[2]), true
		}
	case contractx.EntityServiceType:
		if e.catalog == nil {
			return "", false
		}
		res, err := e.catalog.ResolveServiceType(ctx, text)
		if err != nil {
			log.Warn().Err(err).Msg("catalog lookup failed during extraction")
			return "", false
		}
		if res.Matched {
			// raw value is the synonym span, not the whole message
			if res.Term != "" {
				return res.Term, true
			}
			return text, true
		}
	}
	return "", false
}
