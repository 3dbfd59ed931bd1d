package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/shaonidutta/convergeai/agent/contract"
)

// StructuredRunner invokes a chat model with a fixed system prompt and
// parses the reply into T. It is the single building block behind the
// classifier, the extractor fallback, and the specialist agents.
type StructuredRunner[T any] struct {
	runner compose.Runnable[map[string]any, T]
	guard  *Guard
}

func NewStructuredRunner[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
	guard *Guard,
) (*StructuredRunner[T], error) {
	runner, err := compileStructuredGraph[T](ctx, chatModel, systemPrompt, graphName)
	if err != nil {
		return nil, fmt.Errorf("%w: compile %s: %v", contractx.ErrModelInvoke, graphName, err)
	}
	return &StructuredRunner[T]{runner: runner, guard: guard}, nil
}

// Invoke marshals payload as the user message and returns the parsed reply.
func (r *StructuredRunner[T]) Invoke(ctx context.Context, payload any) (T, error) {
	var out T

	input, err := json.Marshal(payload)
	if err != nil {
		return out, fmt.Errorf("%w: marshal payload: %v", contractx.ErrValidation, err)
	}

	invoke := func(ctx context.Context) error {
		var invokeErr error
		out, invokeErr = r.runner.Invoke(ctx, map[string]any{
			"input": string(input),
		})
		return invokeErr
	}

	if r.guard != nil {
		if err := r.guard.Do(ctx, invoke); err != nil {
			return out, err
		}
		return out, nil
	}
	if err := invoke(ctx); err != nil {
		return out, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}
	return out, nil
}

// escapeBraces doubles literal braces so the FString formatter does not
// read the JSON examples inside a system prompt as placeholders.
func escapeBraces(s string) string {
	s = strings.ReplaceAll(s, "{", "{{")
	return strings.ReplaceAll(s, "}", "}}")
}

func compileStructuredGraph[T any](
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	graphName string,
) (compose.Runnable[map[string]any, T], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(escapeBraces(systemPrompt)),
		schema.UserMessage("{input}"),
	)

	parser := schema.NewMessageJSONParser[T](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, T]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add structured prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add structured model node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add structured parser node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add structured edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add structured edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "parse_json"); err != nil {
		return nil, fmt.Errorf("add structured edge model->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add structured edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName(graphName))
	if err != nil {
		return nil, fmt.Errorf("compile structured graph: %w", err)
	}
	return runner, nil
}
