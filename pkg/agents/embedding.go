package agents

import (
	"context"
	"sort"
	"strings"

	"github.com/kindryd/askflash-mcp/pkg/models"
)

// document is one entry in the built-in corpus EmbeddingLookup searches.
// A real deployment replaces this with an actual vector store; the
// lexical-overlap scoring below stands in for embedding similarity.
type document struct {
	id, title, url, body string
}

var corpus = []document{
	{"d1", "On-call rotation policy", "/docs/oncall-policy", "The on-call rotation follows a weekly handoff schedule managed by the SRE team. Primary and secondary responders trade shifts every Monday."},
	{"d2", "Incident escalation guide", "/docs/escalation", "Escalate to the secondary on-call responder after fifteen minutes without acknowledgement. Page the team lead for any customer-facing outage."},
	{"d3", "Deployment runbook", "/docs/deploy-runbook", "Deployments require a passing test suite and a change ticket. Roll back using the previous release tag if health checks fail."},
	{"d4", "Service level objectives", "/docs/slo", "Each service publishes an availability SLO and a latency SLO. SLO breaches trigger an automatic incident."},
	{"d5", "Access request process", "/docs/access-request", "Access requests go through the identity portal and require manager approval before provisioning."},
}

// EmbeddingLookup scores the built-in corpus against the query by token
// overlap and returns the top matches as SourceHits, the same shape a
// vector search would produce.
func EmbeddingLookup(_ context.Context, msg models.TaskMessage) (map[string]any, error) {
	tokens := tokenize(msg.Query)

	type scored struct {
		doc   document
		score float64
	}
	var hits []scored
	for _, d := range corpus {
		score := overlapScore(tokens, tokenize(d.title+" "+d.body))
		if score > 0 {
			hits = append(hits, scored{d, score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	const maxHits = 3
	if len(hits) > maxHits {
		hits = hits[:maxHits]
	}

	docs := make([]models.SourceHit, 0, len(hits))
	for _, h := range hits {
		docs = append(docs, models.SourceHit{ID: h.doc.id, Title: h.doc.title, URL: h.doc.url, Score: h.score})
	}

	context := ""
	if len(docs) > 0 {
		var b strings.Builder
		for i, h := range hits {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString(h.doc.body)
		}
		context = b.String()
	}

	result := models.EmbeddingResult{Documents: docs, Context: context}
	return result.ToMap(), nil
}

func tokenize(s string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,?!;:\"'")
		if len(f) < 3 {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

func overlapScore(query, candidate map[string]struct{}) float64 {
	if len(query) == 0 || len(candidate) == 0 {
		return 0
	}
	var matches int
	for t := range query {
		if _, ok := candidate[t]; ok {
			matches++
		}
	}
	if matches == 0 {
		return 0
	}
	return float64(matches) / float64(len(query))
}
