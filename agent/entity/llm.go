package entity

import (
	"context"

	llmx "github.com/shaonidutta/convergeai/agent/llm"
)

type structuredLLM struct {
	runner *llmx.StructuredRunner[LLMExtraction]
}

// NewStructuredLLM adapts a structured model runner into the extractor's
// fallback tier.
func NewStructuredLLM(runner *llmx.StructuredRunner[LLMExtraction]) LLMExtractor {
	return &structuredLLM{runner: runner}
}

func (s *structuredLLM) Extract(ctx context.Context, payload ExtractionPayload) (LLMExtraction, error) {
	return s.runner.Invoke(ctx, payload)
}
