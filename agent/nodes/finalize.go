package orchestratornode

import (
	"fmt"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	mergerx "github.com/omniretail/orchestrator/agent/merger"
)

// Finalize shapes the stable result handed back to the transport layer.
func Finalize(in *GraphState) (contractx.OrchestrationResult, error) {
	if in == nil {
		return contractx.OrchestrationResult{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	return contractx.OrchestrationResult{
		NarrativeText:    in.Narrative,
		AgentsInvoked:    mergerx.AgentsInvoked(in.Exec.Results),
		PartialFailure:   in.Exec.PartialFailure,
		EntitiesResolved: in.Entities,
		TurnID:           in.TurnID,
		Timestamp:        in.Now,
	}, nil
}
