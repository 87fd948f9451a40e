package entity

import (
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"
)

var (
	// "order 7", "order id 7", "order #7", "order number 7"
	orderIDPattern  = regexp.MustCompile(`(?i)order\s*(?:id|number|#)?\s*(\d+)`)
	ticketIDPattern = regexp.MustCompile(`(?i)ticket\s*(?:id|number|#)?\s*(\d+)`)
	trackingPattern = regexp.MustCompile(`TRK\d+`)
	amountPattern   = regexp.MustCompile(`\$\s*(\d+(?:\.\d{1,2})?)|(\d+(?:\.\d{1,2})?)\s*(?:dollars|usd)`)

	// Capitalized word runs like "4K Ultra HD Gaming Monitor".
	productPattern = regexp.MustCompile(`\b[A-Z0-9][a-zA-Z0-9-]+(?:\s+[A-Z0-9][a-zA-Z0-9-]+)*\b`)

	dateRangeKeywords = []string{"today", "yesterday", "this week", "last week", "this month", "last month"}
)

var productStopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"my": {}, "i": {}, "where": {}, "what": {}, "find": {}, "search": {},
	"ordered": {}, "order": {}, "purchase": {}, "bought": {}, "when": {},
	"will": {}, "it": {}, "arrive": {}, "status": {}, "payment": {},
	"days": {}, "ago": {}, "do": {}, "have": {}, "any": {}, "support": {},
	"tickets": {}, "ticket": {}, "for": {}, "show": {}, "me": {}, "trk": {},
	"charged": {}, "charge": {}, "charges": {}, "double": {}, "refund": {},
	"refunded": {}, "transaction": {}, "transactions": {}, "wallet": {},
	"balance": {}, "track": {}, "tracking": {}, "delivery": {}, "shipment": {},
	"shipped": {}, "delivered": {}, "arrived": {}, "help": {},
	"problem": {}, "issue": {}, "complaint": {}, "paid": {}, "buy": {},
	"today": {}, "yesterday": {}, "week": {}, "month": {}, "did": {},
	"been": {}, "why": {}, "how": {}, "much": {}, "on": {}, "of": {},
	"in": {}, "and": {}, "to": {}, "about": {}, "there": {}, "this": {},
	"that": {}, "with": {}, "number": {}, "id": {}, "what's": {},
	"whats": {}, "it's": {}, "its": {}, "i'm": {}, "there's": {},
	"has": {}, "yet": {}, "please": {}, "can": {}, "you": {}, "your": {},
	"could": {}, "would": {}, "should": {}, "just": {}, "still": {},
	"not": {}, "get": {}, "got": {}, "want": {}, "need": {}, "check": {},
	"tell": {}, "see": {}, "look": {}, "up": {}, "out": {}, "at": {},
	"from": {}, "by": {}, "or": {}, "but": {}, "if": {}, "so": {},
	"now": {}, "then": {}, "compare": {}, "actually": {}, "meant": {},
	"again": {}, "info": {}, "details": {}, "give": {},
}

// Extractor pulls typed entities out of raw query text and reconciles them
// with the prior session context.
type Extractor struct{}

func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract applies pattern recognition to text for every known entity kind,
// then carries prior-context values through for kinds the text did not
// mention. Text-derived values are tagged FromText and always override
// same-kind context values.
//
// One deliberate exception: when the text names a new product but no order
// identifier, the prior order_id is NOT carried through. The order will be
// re-derived from the new product name at tier 0; carrying the old id would
// answer about an unrelated order.
//
// Malformed text never fails; an absent kind is simply not in the set.
func (e *Extractor) Extract(text string, prior Set) Set {
	set := NewSet()

	if v, ok := lastMatch(orderIDPattern, text, 1); ok {
		set.Put(Value{Kind: KindOrderID, Value: v, Provenance: FromText})
	}
	if v, ok := lastMatch(ticketIDPattern, text, 1); ok {
		set.Put(Value{Kind: KindTicketID, Value: v, Provenance: FromText})
	}
	if v, ok := lastMatch(trackingPattern, strings.ToUpper(text), 0); ok {
		set.Put(Value{Kind: KindTrackingNumber, Value: v, Provenance: FromText})
	}
	if v, ok := extractAmount(text); ok {
		set.Put(Value{Kind: KindAmount, Value: v, Provenance: FromText})
	}
	if v, ok := extractDateRange(text); ok {
		set.Put(Value{Kind: KindDateRange, Value: v, Provenance: FromText})
	}
	if v, ok := extractProductName(text); ok {
		set.Put(Value{Kind: KindProductName, Value: v, Provenance: FromText})
	}

	e.carryContext(set, prior)
	return set
}

func (e *Extractor) carryContext(set Set, prior Set) {
	if len(prior) == 0 {
		return
	}

	newProduct := false
	if v, ok := set.Get(KindProductName); ok && v.Provenance == FromText {
		if old, had := prior.Get(KindProductName); !had || !strings.EqualFold(old.Value, v.Value) {
			newProduct = true
		}
	}

	for kind, v := range prior {
		if set.Has(kind) {
			continue
		}
		// A new product invalidates the remembered order; tier 0 re-derives it.
		if kind == KindOrderID && newProduct {
			log.Debug().
				Str("kind", string(kind)).
				Msg("dropping context entity superseded by new product mention")
			continue
		}
		set.Put(Value{Kind: kind, Value: v.Value, Provenance: FromContext})
	}
}

// lastMatch returns the last occurrence of the pattern in text. When the text
// mentions several candidates of the same kind, the most recently mentioned
// span wins.
func lastMatch(re *regexp.Regexp, text string, group int) (string, bool) {
	matches := re.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	last := matches[len(matches)-1]
	if group >= len(last) {
		return "", false
	}
	v := strings.TrimSpace(last[group])
	return v, v != ""
}

func extractAmount(text string) (string, bool) {
	matches := amountPattern.FindAllStringSubmatch(strings.ToLower(text), -1)
	if len(matches) == 0 {
		return "", false
	}
	last := matches[len(matches)-1]
	for _, g := range last[1:] {
		if g != "" {
			return g, true
		}
	}
	return "", false
}

func extractDateRange(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, kw := range dateRangeKeywords {
		if strings.Contains(lower, kw) {
			return kw, true
		}
	}
	return "", false
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return len(s) > 0
}

func extractProductName(text string) (string, bool) {
	clean := strings.NewReplacer("?", "", ".", "", ",", "", "!", "").Replace(text)

	candidates := productPattern.FindAllString(clean, -1)
	for _, candidate := range candidates {
		words := strings.Fields(candidate)
		kept := make([]string, 0, len(words))
		for _, w := range words {
			if _, stop := productStopWords[strings.ToLower(w)]; stop {
				continue
			}
			// A bare number or tracking token is an id, not a product word.
			if isAllDigits(w) || trackingPattern.MatchString(strings.ToUpper(w)) {
				continue
			}
			kept = append(kept, w)
		}
		if len(kept) > 0 && len(strings.Join(kept, " ")) > 3 {
			return strings.ToLower(strings.Join(kept, " ")), true
		}
	}

	// Fall back to lowercase keyword filtering for queries like
	// "double charged for my monitor".
	words := strings.Fields(strings.ToLower(clean))
	kept := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := productStopWords[w]; stop {
			continue
		}
		if isAllDigits(w) || strings.HasPrefix(w, "$") || trackingPattern.MatchString(strings.ToUpper(w)) {
			continue
		}
		kept = append(kept, w)
	}
	joined := strings.Join(kept, " ")
	if len(joined) > 3 {
		return joined, true
	}
	return "", false
}
