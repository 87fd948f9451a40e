package orchestratornode

import (
	"fmt"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	plannerx "github.com/omniretail/orchestrator/agent/planner"
)

// BuildPlan turns accepted candidates into the tiered execution plan. A plan
// that comes out entirely empty, with nothing even unresolvable, means the
// candidates pointed nowhere actionable; treat that like not understood.
func BuildPlan(in *GraphState, p *plannerx.Planner) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.NotUnderstood {
		return in, nil
	}

	in.Plan = p.Plan(in.Candidates, in.Entities)
	if in.Plan.Empty() && len(in.Plan.Unresolvable) == 0 {
		in.NotUnderstood = true
	}
	return in, nil
}
