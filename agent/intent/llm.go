package intent

import (
	"context"

	llmx "github.com/shaonidutta/convergeai/agent/llm"
)

type structuredLLM struct {
	runner *llmx.StructuredRunner[LLMClassification]
}

// NewStructuredLLM adapts a structured model runner into the classifier's
// LLM tier.
func NewStructuredLLM(runner *llmx.StructuredRunner[LLMClassification]) LLMClassifier {
	return &structuredLLM{runner: runner}
}

func (s *structuredLLM) Classify(ctx context.Context, payload ClassifyPayload) (LLMClassification, error) {
	return s.runner.Invoke(ctx, payload)
}
