package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/omniretail/orchestrator/agent/contract"
)

// Classify scores capability candidates for the turn. No candidates is not
// an error: the turn degrades to a clarifying reply downstream.
func Classify(ctx context.Context, in *GraphState, clf contractx.Classifier) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	candidates, err := clf.Classify(ctx, in.Text)
	if err != nil {
		return nil, err
	}

	in.Candidates = candidates
	in.NotUnderstood = len(candidates) == 0
	return in, nil
}
