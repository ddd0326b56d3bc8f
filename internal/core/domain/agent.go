package domain

type Strategy string

const (
	StrategyHybrid      Strategy = "hybrid"
	StrategyVectorOnly  Strategy = "vector_only"
	StrategyLexicalOnly Strategy = "lexical_only"
)

type Verdict string

const (
	VerdictAccept    Verdict = "accept"
	VerdictRetry     Verdict = "retry"
	VerdictExhausted Verdict = "exhausted"
)

// QueryPlan records one round of the agentic controller: which query text and
// strategy it ran, and what the quality check decided.
type QueryPlan struct {
	Query    string   `json:"query"`
	Round    int      `json:"round"`
	Strategy Strategy `json:"strategy"`
	Verdict  Verdict  `json:"verdict"`
}

// CorpusStats is the aggregate view the stats tool reports to the agent.
type CorpusStats struct {
	Total      int            `json:"total"`
	ByStatus   map[string]int `json:"by_status"`
	TopSkills  map[string]int `json:"top_skills,omitempty"`
	UpdatedUTC string         `json:"updated_utc,omitempty"`
}
