package conversation

import "strings"

// Analysis profiles a session from its user messages.
type Analysis struct {
	SessionID          string         `json:"session_id"`
	MessageCount       int            `json:"message_count"`
	IntentCounts       map[Intent]int `json:"intent_counts"`
	Topics             []Intent       `json:"topics"`
	Preferences        Preferences    `json:"preferences"`
	EngagementScore    float64        `json:"engagement_score"`
	ExperienceLevel    string         `json:"experience_level"`
	CommunicationStyle string         `json:"communication_style"`
	DecisionStage      string         `json:"decision_stage"`
	Sentiment          string         `json:"sentiment"`
	NextActions        []string       `json:"next_actions"`
}

var (
	technicalTerms     = []string{"cap rate", "noi", "irr", "cash-on-cash", "ltv", "dscr"}
	positiveWords      = []string{"great", "excellent", "love", "excited", "perfect", "amazing"}
	negativeWords      = []string{"worried", "concerned", "expensive", "difficult", "problem", "issue"}
	evaluationWords    = []string{"compare", "versus", "specific", "this property", "visit", "tour"}
	readyWords         = []string{"ready", "offer", "buy", "contract", "financing", "close"}
	casualIndicators   = []string{"hey", "gonna", "wanna", "yeah", "cool", "awesome"}
	technicalIndicator = []string{"analysis", "calculate", "metrics", "data", "percentage"}
)

// Analyze summarises a session. An unknown session yields a beginner
// profile with starter actions and ok=false.
func (m *Manager) Analyze(sessionID string) (Analysis, bool) {
	conv, ok := m.Context(sessionID)
	if !ok {
		return Analysis{
			SessionID:          sessionID,
			IntentCounts:       map[Intent]int{},
			Topics:             []Intent{IntentGeneral},
			ExperienceLevel:    "beginner",
			CommunicationStyle: "professional",
			DecisionStage:      "research",
			Sentiment:          "neutral",
			NextActions: []string{
				"Start with a neighborhood overview",
				"Explore current market conditions",
				"Define your investment goals",
			},
		}, false
	}

	var user []string
	counts := map[Intent]int{}
	for _, msg := range conv.Messages {
		if msg.Role != RoleUser {
			continue
		}
		user = append(user, strings.ToLower(msg.Content))
		counts[msg.Intent]++
	}

	topics := sortedIntents(counts)
	if len(topics) > 3 {
		topics = topics[:3]
	}

	a := Analysis{
		SessionID:          sessionID,
		MessageCount:       len(conv.Messages),
		IntentCounts:       counts,
		Topics:             topics,
		Preferences:        conv.Preferences,
		ExperienceLevel:    experienceLevel(user),
		CommunicationStyle: communicationStyle(user),
		DecisionStage:      decisionStage(user),
		Sentiment:          sentiment(user),
	}
	a.EngagementScore = engagement(len(user), len(counts), conv.Preferences)
	a.NextActions = nextActions(a.DecisionStage, conv)
	return a, true
}

// engagement grows with message volume, topic breadth and stated
// preferences, capped at 1.
func engagement(userMessages, distinctIntents int, p Preferences) float64 {
	score := 0.1*float64(userMessages) + 0.05*float64(distinctIntents)
	if len(p.Locations) > 0 {
		score += 0.1
	}
	if len(p.PropertyTypes) > 0 {
		score += 0.1
	}
	if p.PriceRange != nil {
		score += 0.1
	}
	return min(score, 1.0)
}

func countMessagesWithAny(msgs []string, words []string) int {
	n := 0
	for _, msg := range msgs {
		for _, w := range words {
			if strings.Contains(msg, w) {
				n++
				break
			}
		}
	}
	return n
}

func experienceLevel(msgs []string) string {
	switch n := countMessagesWithAny(msgs, technicalTerms); {
	case n > 3:
		return "expert"
	case n > 1:
		return "intermediate"
	default:
		return "beginner"
	}
}

func communicationStyle(msgs []string) string {
	all := strings.Join(msgs, " ")
	casual, technical := 0, 0
	for _, w := range casualIndicators {
		if strings.Contains(all, w) {
			casual++
		}
	}
	for _, w := range technicalIndicator {
		if strings.Contains(all, w) {
			technical++
		}
	}
	switch {
	case casual > technical*2:
		return "casual"
	case technical > casual*2:
		return "technical"
	default:
		return "professional"
	}
}

func decisionStage(msgs []string) string {
	switch {
	case countMessagesWithAny(msgs, readyWords) > 0:
		return "ready"
	case countMessagesWithAny(msgs, evaluationWords) > 0:
		return "evaluation"
	default:
		return "research"
	}
}

func sentiment(msgs []string) string {
	score := 0
	for _, msg := range msgs {
		for _, w := range positiveWords {
			if strings.Contains(msg, w) {
				score++
			}
		}
		for _, w := range negativeWords {
			if strings.Contains(msg, w) {
				score--
			}
		}
	}
	switch {
	case score > 2:
		return "positive"
	case score < -2:
		return "negative"
	default:
		return "neutral"
	}
}

func nextActions(stage string, conv *Context) []string {
	var out []string
	switch stage {
	case "research":
		out = []string{"View neighborhood comparison report", "Explore market trends dashboard", "Calculate investment potential"}
	case "evaluation":
		out = []string{"Schedule property tours", "Request detailed property analysis", "Compare financing options"}
	case "ready":
		out = []string{"Connect with preferred lender", "Review contract checklist", "Calculate closing costs"}
	}
	if len(conv.Preferences.Locations) > 0 {
		out = append(out, "Get "+conv.Preferences.Locations[0]+" market report")
	}
	if conv.CurrentTopic == IntentInvestmentAdvice {
		out = append(out, "View ROI calculator", "Analyze cash flow scenarios")
	}
	return out
}
