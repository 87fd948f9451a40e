package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	executorx "github.com/omniretail/orchestrator/agent/executor"
)

// ExecutePlan runs all tiers and folds the capability-resolved entities into
// the turn's working set.
func ExecutePlan(ctx context.Context, in *GraphState, exec *executorx.Executor) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.NotUnderstood {
		return in, nil
	}

	in.Exec = exec.Execute(ctx, in.Plan, in.Entities)
	in.Entities = in.Exec.Entities
	return in, nil
}
