package entity

import (
	"context"
	"errors"
	"testing"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

type fakeCatalog struct {
	serviceable map[string]bool
	resolution  map[string]contractx.ServiceResolution
	err         error
}

func (f *fakeCatalog) IsServiceable(ctx context.Context, pincode string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.serviceable[pincode], nil
}

func (f *fakeCatalog) ResolveServiceType(ctx context.Context, text string) (contractx.ServiceResolution, error) {
	if f.err != nil {
		return contractx.ServiceResolution{}, f.err
	}
	return f.resolution[text], nil
}

type fakeLLMExtractor struct {
	out   LLMExtraction
	err   error
	calls int
}

func (f *fakeLLMExtractor) Extract(ctx context.Context, payload ExtractionPayload) (LLMExtraction, error) {
	f.calls++
	if f.err != nil {
		return LLMExtraction{}, f.err
	}
	return f.out, nil
}

func TestExtractFromFollowUpPatternTier(t *testing.T) {
	t.Parallel()

	llm := &fakeLLMExtractor{}
	e := NewExtractor(&fakeCatalog{}, llm)

	res := e.ExtractFromFollowUp(context.Background(), "tomorrow works", contractx.EntityDate, nil)
	if res.Method != contractx.MethodPattern {
		t.Fatalf("expected pattern method, got %s", res.Method)
	}
	if res.RawValue != "tomorrow" {
		t.Fatalf("unexpected raw value %q", res.RawValue)
	}
	if llm.calls != 0 {
		t.Fatalf("pattern hit must not call the llm, got %d calls", llm.calls)
	}
}

func TestExtractFromFollowUpLLMTier(t *testing.T) {
	t.Parallel()

	llm := &fakeLLMExtractor{out: LLMExtraction{Found: true, RawValue: "deep cleaning", Confidence: 0.8}}
	e := NewExtractor(&fakeCatalog{}, llm)

	res := e.ExtractFromFollowUp(context.Background(), "the thorough one please", contractx.EntityServiceType, nil)
	if res.Method != contractx.MethodLLM {
		t.Fatalf("expected llm method, got %s", res.Method)
	}
	if res.RawValue != "deep cleaning" {
		t.Fatalf("unexpected raw value %q", res.RawValue)
	}
	if llm.calls != 1 {
		t.Fatalf("expected one llm call, got %d", llm.calls)
	}
}

func TestExtractFromFollowUpLLMErrorFallsBack(t *testing.T) {
	t.Parallel()

	llm := &fakeLLMExtractor{err: errors.New("model down")}
	e := NewExtractor(&fakeCatalog{}, llm)

	res := e.ExtractFromFollowUp(context.Background(), "hmm not sure", contractx.EntityDate, nil)
	if res.Method != contractx.MethodFallback {
		t.Fatalf("expected fallback method, got %s", res.Method)
	}
	if !res.Empty() {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if res.Confidence != 0 {
		t.Fatalf("fallback confidence must be zero, got %f", res.Confidence)
	}
}

func TestExtractFromFollowUpLowConfidenceIgnored(t *testing.T) {
	t.Parallel()

	llm := &fakeLLMExtractor{out: LLMExtraction{Found: true, RawValue: "maybe friday", Confidence: 0.3}}
	e := NewExtractor(&fakeCatalog{}, llm)

	res := e.ExtractFromFollowUp(context.Background(), "uhh", contractx.EntityDate, nil)
	if res.Method != contractx.MethodFallback {
		t.Fatalf("low-confidence llm output must be discarded, got %s", res.Method)
	}
}

func TestPatternAll(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{resolution: map[string]contractx.ServiceResolution{
		"book ac service tomorrow 3pm at 110001": {Category: "ac_service", Matched: true},
	}}
	e := NewExtractor(cat, nil)

	found := e.PatternAll(context.Background(), "book ac service tomorrow 3pm at 110001")
	if found[contractx.EntityDate] != "tomorrow" {
		t.Fatalf("date = %q", found[contractx.EntityDate])
	}
	if found[contractx.EntityTime] != "3pm" {
		t.Fatalf("time = %q", found[contractx.EntityTime])
	}
	if found[contractx.EntityPincode] != "110001" {
		t.Fatalf("pincode = %q", found[contractx.EntityPincode])
	}
	if _, ok := found[contractx.EntityServiceType]; !ok {
		t.Fatalf("expected a service_type hit, got %v", found)
	}
}

func TestPatternServiceTypeReturnsMatchedSpan(t *testing.T) {
	t.Parallel()

	cat := &fakeCatalog{resolution: map[string]contractx.ServiceResolution{
		"book an ac repair at home": {Category: "ac_service", Term: "ac repair", Matched: true},
	}}
	e := NewExtractor(cat, nil)

	res, ok := e.Pattern(context.Background(), "book an ac repair at home", contractx.EntityServiceType)
	if !ok {
		t.Fatal("service pattern not found")
	}
	if res.RawValue != "ac repair" {
		t.Fatalf("raw value = %q, want the matched synonym span", res.RawValue)
	}
}

func TestPatternBookingID(t *testing.T) {
	t.Parallel()

	e := NewExtractor(nil, nil)

	cases := []struct {
		message string
		want    string
	}{
		{"cancel BK1234", "BK1234"},
		{"booking id 98x-22", "98X-22"},
		{"my booking number: abc123", "ABC123"},
	}
	for _, tc := range cases {
		res, ok := e.Pattern(context.Background(), tc.message, contractx.EntityBookingID)
		if !ok {
			t.Fatalf("Pattern(%q) found nothing", tc.message)
		}
		if res.RawValue != tc.want {
			t.Fatalf("Pattern(%q) = %q, want %q", tc.message, res.RawValue, tc.want)
		}
	}
}
