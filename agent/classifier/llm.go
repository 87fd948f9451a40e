package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/omniretail/orchestrator/agent/contract"
)

// LLMClassifier asks a chat model for capability candidates and validates
// the structured reply against the set of known capability names. Unknown
// names are dropped with a warning rather than failing the turn.
type LLMClassifier struct {
	runner     compose.Runnable[map[string]any, classifierLLMOutput]
	knownNames map[string]struct{}
}

type classifierLLMOutput struct {
	Candidates []struct {
		Capability string  `json:"capability"`
		Confidence float64 `json:"confidence"`
	} `json:"candidates"`
}

var _ contractx.Classifier = (*LLMClassifier)(nil)

func NewLLMClassifier(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
	knownCapabilities []string,
) (*LLMClassifier, error) {
	runner, err := compileClassifierGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, fmt.Errorf("%w: compile classifier graph: %v", contractx.ErrModelInvoke, err)
	}

	known := make(map[string]struct{}, len(knownCapabilities))
	for _, name := range knownCapabilities {
		known[name] = struct{}{}
	}

	return &LLMClassifier{
		runner:     runner,
		knownNames: known,
	}, nil
}

func (c *LLMClassifier) Classify(ctx context.Context, text string) ([]contractx.Candidate, error) {
	payload := map[string]any{
		"utterance": text,
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: marshal classifier payload: %v", contractx.ErrValidation, err)
	}

	out, err := c.runner.Invoke(ctx, map[string]any{
		"input": string(input),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: classifier invoke: %v", contractx.ErrModelInvoke, err)
	}

	candidates := make([]contractx.Candidate, 0, len(out.Candidates))
	for _, cand := range out.Candidates {
		name := strings.TrimSpace(cand.Capability)
		if name == "" {
			continue
		}
		if _, ok := c.knownNames[name]; !ok {
			log.Warn().Str("capability", name).Msg("classifier proposed unknown capability, dropping")
			continue
		}
		candidates = append(candidates, contractx.Candidate{
			Capability: name,
			Confidence: clamp01(cand.Confidence),
		})
	}
	return candidates, nil
}

func compileClassifierGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, classifierLLMOutput], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	parser := schema.NewMessageJSONParser[classifierLLMOutput](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, classifierLLMOutput]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add classifier prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add classifier model node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add classifier parser node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add classifier edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add classifier edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "parse_json"); err != nil {
		return nil, fmt.Errorf("add classifier edge model->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add classifier edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("classifier.model_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile classifier graph: %w", err)
	}
	return runner, nil
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
