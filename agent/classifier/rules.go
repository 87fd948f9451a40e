// Package classifier turns one customer utterance into scored capability
// candidates. Two implementations share the contract: a deterministic
// keyword classifier and an LLM-backed one. The keyword classifier is both
// the test substitute and the production fallback when no model is wired.
package classifier

import (
	"context"
	"strings"

	contractx "github.com/omniretail/orchestrator/agent/contract"
)

// RuleClassifier scores capabilities from keyword groups. Matching is
// substring-based on the lowercased utterance, so "tracking" matches the
// "track" keyword.
type RuleClassifier struct{}

func NewRuleClassifier() *RuleClassifier {
	return &RuleClassifier{}
}

var _ contractx.Classifier = (*RuleClassifier)(nil)

const (
	confidenceDirect  = 0.9
	confidenceImplied = 0.75
)

var (
	logisticsWords = []string{"track", "delivery", "shipment", "shipping", "shipped", "where", "location", "arrive", "arriving", "arrived", "delivered"}
	balanceWords   = []string{"wallet", "balance", "store credit"}
	paymentWords   = []string{"refund", "payment", "transaction", "paid", "charge", "charged", "billed"}
	ticketWords    = []string{"ticket", "support", "complaint", "issue", "help", "problem"}
	buyWords       = []string{"bought", "buy", "purchase"}
	recencyWords   = []string{"today", "yesterday", "recent", "lately", "last week", "last month", "history"}
	catalogWords   = []string{"order", "product", "item"}
)

// Classify never returns an error; an utterance with no recognizable
// keywords yields an empty candidate list and the caller decides how to
// respond to a query it did not understand.
func (c *RuleClassifier) Classify(_ context.Context, text string) ([]contractx.Candidate, error) {
	lower := strings.ToLower(text)
	var out []contractx.Candidate

	add := func(capability string, confidence float64) {
		for _, existing := range out {
			if existing.Capability == capability {
				return
			}
		}
		out = append(out, contractx.Candidate{Capability: capability, Confidence: confidence})
	}

	if containsAny(lower, logisticsWords) {
		add("logistics-lookup", confidenceDirect)
	}
	if containsAny(lower, balanceWords) {
		add("payments-balance", confidenceDirect)
	}
	if containsAny(lower, paymentWords) {
		add("payments-lookup", confidenceDirect)
	}
	if containsAny(lower, ticketWords) {
		add("support-ticket-lookup", confidenceDirect)
	}

	// Purchase verbs with a recency cue ask about purchase history; without
	// one they point at a specific catalog entry.
	if containsAny(lower, buyWords) {
		if containsAny(lower, recencyWords) {
			add("catalog-recent-orders", confidenceDirect)
		} else {
			add("catalog-resolve", confidenceImplied)
		}
	}
	if containsAny(lower, catalogWords) {
		add("catalog-resolve", confidenceImplied)
	}

	return out, nil
}

func containsAny(haystack string, words []string) bool {
	for _, w := range words {
		if strings.Contains(haystack, w) {
			return true
		}
	}
	return false
}
