package ollama

import (
	"fmt"
	"strings"

	"github.com/talentsift/talentsift/internal/core/domain"
)

func buildFieldExtractionPrompt(text string) string {
	const maxSnippet = 8000
	snippet := text
	if len(snippet) > maxSnippet {
		snippet = snippet[:maxSnippet]
	}

	return `You are a resume parser.
Return a strict JSON object describing the candidate with keys:
name (string), title (string), skills (array of strings), years_experience (number),
education (string), languages (array of strings), summary (string).
Use null for fields the resume does not state. No markdown, no extra keys.

Resume:
` + snippet
}

func buildJustificationPrompt(fields map[string]domain.Value, cond domain.Condition, qualified bool) string {
	verdict := "qualified"
	if !qualified {
		verdict = "not qualified"
	}

	var fieldLines strings.Builder
	for key, value := range fields {
		fieldLines.WriteString(fmt.Sprintf("%s: %s\n", key, value.String()))
	}

	return fmt.Sprintf(`A candidate was evaluated against a screening condition and found %s.
Write one or two plain sentences explaining the verdict using only the facts below.
Do not second-guess the verdict.

Condition:
%s

Candidate fields:
%s`, verdict, renderCondition(cond), fieldLines.String())
}

func buildAnswerPrompt(question string, sources []domain.RankedCandidate, stats domain.CorpusStats, degraded bool) string {
	var contextBuilder strings.Builder
	for idx, src := range sources {
		contextBuilder.WriteString(fmt.Sprintf(
			"[%d] candidate=%s score=%.4f\n%s\n\n",
			idx+1,
			src.CandidateID,
			src.FusedScore,
			src.Snippet,
		))
	}

	note := ""
	if degraded {
		note = "\nRetrieval quality was below target. Say so and answer with what is available.\n"
	}

	return fmt.Sprintf(`Answer the recruiter's question only from the candidate context below.
If the context is insufficient, say it directly.
Corpus: %d candidates total (%s).%s
Question:
%s

Context:
%s
`, stats.Total, renderByStatus(stats.ByStatus), note, question, contextBuilder.String())
}

func renderByStatus(byStatus map[string]int) string {
	if len(byStatus) == 0 {
		return "no status breakdown"
	}
	parts := make([]string, 0, len(byStatus))
	for _, status := range []domain.CandidateStatus{
		domain.StatusQualified,
		domain.StatusUnqualified,
		domain.StatusPending,
		domain.StatusDuplicate,
		domain.StatusFailed,
	} {
		if n, ok := byStatus[string(status)]; ok && n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, status))
		}
	}
	if len(parts) == 0 {
		return "no status breakdown"
	}
	return strings.Join(parts, ", ")
}

// renderCondition flattens the condition tree into prompt text.
func renderCondition(cond domain.Condition) string {
	if cond.IsZero() {
		return "no condition, every candidate qualifies"
	}
	switch cond.Op {
	case domain.OpAnd, domain.OpOr:
		parts := make([]string, 0, len(cond.Terms))
		for _, term := range cond.Terms {
			parts = append(parts, renderCondition(term))
		}
		joiner := " AND "
		if cond.Op == domain.OpOr {
			joiner = " OR "
		}
		return "(" + strings.Join(parts, joiner) + ")"
	case domain.OpNot:
		if len(cond.Terms) == 1 {
			return "NOT " + renderCondition(cond.Terms[0])
		}
		return "NOT (malformed)"
	case domain.OpExists:
		return fmt.Sprintf("%s is present", cond.Field)
	default:
		return fmt.Sprintf("%s %s %v", cond.Field, cond.Op, cond.Value)
	}
}
