// Package merger assembles heterogeneous capability results into the
// synthesis bundle handed to the narrative collaborator. It performs no
// business logic of its own; its ordering and flagging rules are the contract.
package merger

import (
	"fmt"
	"sort"
	"strings"

	contractx "github.com/omniretail/orchestrator/agent/contract"
	entityx "github.com/omniretail/orchestrator/agent/entity"
)

// Merge flattens results (already ordered by tier then invocation) into a
// SynthesisBundle. When every invocation came back empty or failed, the
// bundle is flagged so the collaborator frames an explicit "no data found"
// answer instead of fabricating content.
func Merge(queryText string, results []contractx.CapabilityResult, entitiesUsed entityx.Set) contractx.SynthesisBundle {
	noData := true
	for _, r := range results {
		if r.Status == contractx.StatusOK && len(r.Payload) > 0 {
			noData = false
			break
		}
	}

	return contractx.SynthesisBundle{
		QueryText:    queryText,
		Results:      append([]contractx.CapabilityResult(nil), results...),
		EntitiesUsed: entitiesUsed.Clone(),
		NoData:       noData,
	}
}

// AgentsInvoked lists contributing capability names in bundle order.
func AgentsInvoked(results []contractx.CapabilityResult) []string {
	names := make([]string, 0, len(results))
	for _, r := range results {
		names = append(names, r.Capability)
	}
	return names
}

// FallbackNarrative renders a deterministic templated answer from the bundle
// for when the narrative collaborator is unavailable. The caller must always
// have something to return.
func FallbackNarrative(bundle contractx.SynthesisBundle) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here is what I found for %q:\n", bundle.QueryText)

	if bundle.NoData {
		b.WriteString("No matching records were found in any system.")
		return b.String()
	}

	for _, r := range bundle.Results {
		switch r.Status {
		case contractx.StatusOK:
			if len(r.Payload) == 0 {
				continue
			}
			fmt.Fprintf(&b, "\n%s (%d record(s)):\n", r.Capability, len(r.Payload))
			for i, row := range r.Payload {
				if i >= 3 {
					fmt.Fprintf(&b, "  … and %d more\n", len(r.Payload)-i)
					break
				}
				b.WriteString("  - " + formatRow(row) + "\n")
			}
		case contractx.StatusNotFound:
			fmt.Fprintf(&b, "\n%s: no data found\n", r.Capability)
		case contractx.StatusTimeout:
			fmt.Fprintf(&b, "\n%s: timed out\n", r.Capability)
		case contractx.StatusError:
			fmt.Fprintf(&b, "\n%s: unavailable\n", r.Capability)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func formatRow(row contractx.Row) string {
	parts := make([]string, 0, len(row))
	for _, key := range sortedKeys(row) {
		parts = append(parts, fmt.Sprintf("%s=%v", key, row[key]))
	}
	return strings.Join(parts, ", ")
}

func sortedKeys(row contractx.Row) []string {
	keys := make([]string, 0, len(row))
	for k := range row {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
