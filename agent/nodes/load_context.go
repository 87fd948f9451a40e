package orchestratornode

import (
	"context"
	"errors"
	"fmt"
	"time"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	statex "github.com/omniretail/orchestrator/agent/state"
)

// LoadContext fetches the session context, creating a fresh one for unknown
// sessions. A context idle past its timeout is discarded and replaced, which
// is how sessions expire without a background reaper on the store.
func LoadContext(
	ctx context.Context,
	in *GraphState,
	store statex.Store,
	idleTimeout time.Duration,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	sc, err := store.Load(ctx, in.SessionID)
	switch {
	case err == nil:
		if sc.IdleExpired(in.Now, idleTimeout) {
			sc = statex.NewSessionContext(in.SessionID, in.UserID, in.Now)
		}
	case errors.Is(err, statex.ErrStateNotFound):
		sc = statex.NewSessionContext(in.SessionID, in.UserID, in.Now)
	default:
		return nil, err
	}

	sc.EnsureEntities()
	if sc.UserID == "" && in.UserID != "" {
		sc.UserID = in.UserID
	}

	in.Session = sc
	return in, nil
}
