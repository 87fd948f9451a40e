package classifier

import (
	"context"

	"github.com/rs/zerolog/log"

	contractx "github.com/omniretail/orchestrator/agent/contract"
)

// Chain tries the primary classifier and degrades to the fallback when it
// fails, so a model outage never takes query handling down with it.
type Chain struct {
	primary  contractx.Classifier
	fallback contractx.Classifier
}

var _ contractx.Classifier = (*Chain)(nil)

func NewChain(primary, fallback contractx.Classifier) *Chain {
	return &Chain{primary: primary, fallback: fallback}
}

func (c *Chain) Classify(ctx context.Context, text string) ([]contractx.Candidate, error) {
	candidates, err := c.primary.Classify(ctx, text)
	if err == nil {
		return candidates, nil
	}

	log.Warn().Err(err).Msg("primary classifier failed, falling back to keyword rules")
	return c.fallback.Classify(ctx, text)
}
