package orchestratornode

import (
	"fmt"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
)

// ExtractEntities builds the turn's working entity set from the query text
// merged with the session's remembered entities. A user id carried on the
// request itself counts as mentioned this turn, so it overrides anything
// the session remembers.
func ExtractEntities(in *GraphState, extractor *entityx.Extractor) (*GraphState, error) {
	if in == nil || in.Session == nil {
		return nil, fmt.Errorf("%w: session context is nil", contractx.ErrValidation)
	}

	set := extractor.Extract(in.Text, in.Session.Entities)
	if in.UserID != "" {
		set.Put(entityx.Value{
			Kind:       entityx.KindUserID,
			Value:      in.UserID,
			Provenance: entityx.FromText,
		})
	}

	in.Entities = set
	return in, nil
}
