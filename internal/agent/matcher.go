package agent

import "strings"

// categoryRule maps trigger keywords to a canonical topic. Rules are
// evaluated in declared order; the first rule that produces a matching
// stored pair wins, with no cross-rule scoring.
type categoryRule struct {
	topic    string
	keywords []string
}

var defaultRules = []categoryRule{
	{topic: "hours", keywords: []string{"hours", "open", "close", "opening", "closing", "when are you"}},
	{topic: "price", keywords: []string{"price", "pricing", "cost", "how much", "charge", "fee", "rates"}},
	{topic: "services", keywords: []string{"services", "service", "offer", "do you do", "provide", "treatments"}},
	{topic: "appointment", keywords: []string{"appointment", "book", "booking", "schedule", "reschedule", "availability"}},
	{topic: "location", keywords: []string{"location", "address", "where are you", "located", "directions", "find you"}},
	{topic: "parking", keywords: []string{"parking", "park"}},
	{topic: "cancellation", keywords: []string{"cancel", "cancellation", "no-show"}},
	{topic: "payment", keywords: []string{"payment", "pay", "card", "cash", "credit", "invoice"}},
}

// MatchResult is the outcome of a snapshot lookup
type MatchResult struct {
	Matched         bool
	Answer          string
	Confidence      float64
	MatchedQuestion string
}

// qaPair is a question/answer block parsed out of a snapshot
type qaPair struct {
	question string
	answer   string
}

// Matcher is a deterministic keyword pre-filter that answers common
// question categories straight from the knowledge snapshot, so the
// generative service is not invoked for them. It only ever returns answers
// present verbatim in the snapshot.
type Matcher struct {
	rules []categoryRule
}

func NewMatcher() *Matcher {
	return &Matcher{rules: defaultRules}
}

// Match looks the question up in the snapshot. Confidence scales with the
// number of keyword hits: min(0.9, 0.6 + 0.1*hits). No rule hit, or no
// stored pair for a hit rule, yields Matched=false with confidence 0.
func (m *Matcher) Match(question, snapshot string) MatchResult {
	lowered := strings.ToLower(question)
	var pairs []qaPair
	parsed := false

	for _, rule := range m.rules {
		hits := 0
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}

		if !parsed {
			pairs = parseSnapshot(snapshot)
			parsed = true
		}

		if pair, ok := findPair(pairs, rule); ok {
			confidence := 0.6 + 0.1*float64(hits)
			if confidence > 0.9 {
				confidence = 0.9
			}
			return MatchResult{
				Matched:         true,
				Answer:          pair.answer,
				Confidence:      confidence,
				MatchedQuestion: pair.question,
			}
		}
	}

	return MatchResult{}
}

// findPair returns the first stored pair whose question mentions the rule's
// topic label or any of its trigger keywords.
func findPair(pairs []qaPair, rule categoryRule) (qaPair, bool) {
	for _, pair := range pairs {
		stored := strings.ToLower(pair.question)
		if strings.Contains(stored, rule.topic) {
			return pair, true
		}
		for _, kw := range rule.keywords {
			if strings.Contains(stored, kw) {
				return pair, true
			}
		}
	}
	return qaPair{}, false
}

// parseSnapshot splits the snapshot text into pairs using the fixed
// "Q: "/"A: " line-prefix convention.
func parseSnapshot(snapshot string) []qaPair {
	var pairs []qaPair
	var current qaPair

	for _, line := range strings.Split(snapshot, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "Q: "):
			if current.question != "" && current.answer != "" {
				pairs = append(pairs, current)
			}
			current = qaPair{question: strings.TrimPrefix(line, "Q: ")}
		case strings.HasPrefix(line, "A: "):
			current.answer = strings.TrimPrefix(line, "A: ")
		}
	}
	if current.question != "" && current.answer != "" {
		pairs = append(pairs, current)
	}

	return pairs
}
