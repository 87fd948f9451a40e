package orchestratornode

import (
	"context"
	"fmt"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	mergerx "github.com/omniretail/orchestrator/agent/merger"
	statex "github.com/omniretail/orchestrator/agent/state"
)

// SaveContext reconciles the turn's final entity set into the session and
// appends the exchange to conversation history before persisting.
func SaveContext(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	maxHistory int,
) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: session context is nil", contractx.ErrValidation)
	}

	in.Session.Reconcile(in.Entities, in.Now)
	in.Session.RecordTurn(statex.Turn{
		TurnID:        in.TurnID,
		Query:         in.Text,
		Narrative:     in.Narrative,
		AgentsInvoked: mergerx.AgentsInvoked(in.Exec.Results),
		Timestamp:     in.Now,
	}, maxHistory)

	if err := store.Save(ctx, in.Session); err != nil {
		return nil, err
	}
	return in, nil
}
