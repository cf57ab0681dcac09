package search

import (
	"regexp"
	"sort"
	"strings"

	"github.com/fernando-x/platform/libs/intelligence-engine/internal/knowledge"
)

var sentenceEnd = regexp.MustCompile(`[.!?\n]+`)

// chunkText groups sentences into chunks of at most maxWords words. A single
// sentence longer than maxWords becomes its own chunk.
func chunkText(text string, maxWords int) []string {
	var chunks []string
	var cur []string
	count := 0

	for _, s := range splitSentences(text) {
		n := len(strings.Fields(s))
		if count > 0 && count+n > maxWords {
			chunks = append(chunks, strings.Join(cur, ". ")+".")
			cur, count = nil, 0
		}
		cur = append(cur, s)
		count += n
	}
	if len(cur) > 0 {
		chunks = append(chunks, strings.Join(cur, ". ")+".")
	}
	return chunks
}

func splitSentences(text string) []string {
	var out []string
	for _, s := range sentenceEnd.Split(text, -1) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Highlights returns up to limit sentences of content that mention query
// words, best first. Each matching word scores 2 and a sentence matching
// more than one word gets a bonus of 1 per extra word.
func Highlights(content, query string, limit int) []string {
	words := highlightWords(query)
	if len(words) == 0 {
		return nil
	}

	type scored struct {
		text  string
		score int
		pos   int
	}
	var candidates []scored
	for i, s := range splitSentences(content) {
		if len(s) <= 10 {
			continue
		}
		lower := strings.ToLower(s)
		matched := 0
		for _, w := range words {
			if strings.Contains(lower, w) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		score := matched * 2
		if matched > 1 {
			score += matched - 1
		}
		candidates = append(candidates, scored{text: s, score: score, pos: i})
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.text
	}
	return out
}

func highlightWords(query string) []string {
	seen := map[string]bool{}
	var out []string
	for _, w := range strings.Fields(strings.ToLower(query)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) > 2 && !seen[w] {
			seen[w] = true
			out = append(out, w)
		}
	}
	return out
}

// perspective frames a node for an investor reading the result.
func perspective(n *knowledge.Node) string {
	switch n.Type {
	case knowledge.NodeMarket:
		return "Market perspective: pricing, demand and inventory signals for " + locationOf(n) + "."
	case knowledge.NodeInfrastructure:
		return "Development perspective: projects and permits that shape future values around " + locationOf(n) + "."
	case knowledge.NodeRegulatory:
		return "Regulatory perspective: zoning, incentives and codes that affect what can be built."
	case knowledge.NodeEnvironmental:
		return "Environmental perspective: flood exposure and resilience factors to weigh in underwriting."
	case knowledge.NodeFinancial:
		return "Financial perspective: capital flows and economic indicators behind Houston demand."
	default:
		return ""
	}
}

func locationOf(n *knowledge.Node) string {
	if n.Metadata.Location != "" {
		return n.Metadata.Location
	}
	return "Houston"
}
