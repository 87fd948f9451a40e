// Package synth turns a merged result bundle into the narrative reply.
// The LLM synthesizer is the production path; the fallback synthesizer is a
// deterministic template used in tests and whenever the model path fails,
// so the orchestrator always has an answer to return.
package synth

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	mergerx "github.com/omniretail/orchestrator/agent/merger"
)

// LLMSynthesizer renders the bundle through a chat model.
type LLMSynthesizer struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

var _ contractx.Synthesizer = (*LLMSynthesizer)(nil)

func NewLLMSynthesizer(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (*LLMSynthesizer, error) {
	runner, err := compileSynthesizerGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile synthesizer graph: %v", contractx.ErrModelInvoke, err)
	}
	return &LLMSynthesizer{runner: runner}, nil
}

func (s *LLMSynthesizer) Synthesize(ctx context.Context, bundle contractx.SynthesisBundle) (string, error) {
	payload := map[string]any{
		"query":         bundle.QueryText,
		"entities_used": bundle.EntitiesUsed,
		"results":       bundle.Results,
		"no_data":       bundle.NoData,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: marshal synthesis payload: %v", contractx.ErrValidation, err)
	}

	msg, err := s.runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return "", fmt.Errorf("%w: synthesizer invoke: %v", contractx.ErrSynthesisFailed, err)
	}
	if msg == nil {
		return "", fmt.Errorf("%w: empty synthesizer response", contractx.ErrSynthesisFailed)
	}

	narrative := strings.TrimSpace(msg.Content)
	if narrative == "" {
		return "", fmt.Errorf("%w: synthesizer narrative is empty", contractx.ErrSynthesisFailed)
	}
	return narrative, nil
}

func compileSynthesizerGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add synthesizer prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add synthesizer model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add synthesizer edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add synthesizer edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add synthesizer edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("synthesizer.model_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile synthesizer graph: %w", err)
	}
	return runner, nil
}

// FallbackSynthesizer renders a deterministic templated narrative without a
// model. It never fails.
type FallbackSynthesizer struct{}

var _ contractx.Synthesizer = (*FallbackSynthesizer)(nil)

func NewFallbackSynthesizer() *FallbackSynthesizer {
	return &FallbackSynthesizer{}
}

func (s *FallbackSynthesizer) Synthesize(_ context.Context, bundle contractx.SynthesisBundle) (string, error) {
	return mergerx.FallbackNarrative(bundle), nil
}
