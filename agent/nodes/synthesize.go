package orchestratornode

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	mergerx "github.com/omniretail/orchestrator/agent/merger"
)

const clarifyNarrative = "I couldn't match that to anything I can look up. " +
	"I can help with orders, shipments, payments, wallet balance, and support tickets. Could you rephrase?"

// MergeResults assembles the synthesis bundle in tier-then-invocation order.
func MergeResults(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.NotUnderstood {
		return in, nil
	}

	in.Bundle = mergerx.Merge(in.Text, in.Exec.Results, in.Entities)
	return in, nil
}

// Synthesize renders the narrative. A synthesizer failure downgrades to the
// deterministic fallback; the turn itself never fails at this stage.
func Synthesize(ctx context.Context, in *GraphState, primary, fallback contractx.Synthesizer) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.NotUnderstood {
		in.Narrative = clarifyNarrative
		return in, nil
	}

	narrative, err := primary.Synthesize(ctx, in.Bundle)
	if err != nil {
		log.Warn().
			Err(err).
			Str("session_id", in.SessionID).
			Msg("narrative synthesis failed, using fallback template")
		narrative, err = fallback.Synthesize(ctx, in.Bundle)
		if err != nil {
			return nil, fmt.Errorf("%w: fallback synthesis: %v", contractx.ErrSynthesisFailed, err)
		}
	}

	in.Narrative = narrative
	return in, nil
}
