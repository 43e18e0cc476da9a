package coordinator

import (
	"context"

	"github.com/dtecho/folio/internal/agent"
)

// qualityGate is the submission quality score below which the editorial
// chain is skipped.
const qualityGate = 0.6

// manuscriptProcessing: Submission assesses, Editorial decides, Review
// assigns reviewers, Quality validates, Production produces. A quality
// score at or below the gate skips everything between Submission and
// Analytics; Analytics always runs last.
func (c *Coordinator) manuscriptProcessing(ctx context.Context, wr *workflowRun, data map[string]any) {
	assessment, ok := c.step(ctx, wr, agent.TypeSubmission, "assess_submission", data, nil)

	previous := assessment
	if ok && resultFloat(assessment, "quality_score", 1.0) > qualityGate {
		decision, ok := c.step(ctx, wr, agent.TypeEditorial, "editorial_decision", data, previous)
		previous = decision

		if ok && resultString(decision, "decision", "accept") == "accept" {
			reviewers, ok := c.step(ctx, wr, agent.TypeReview, "assign_reviewers", data, previous)
			previous = reviewers

			if ok {
				validation, ok := c.step(ctx, wr, agent.TypeQuality, "quality_validation", data, previous)
				previous = validation

				if ok && resultBool(validation, "approved", true) {
					produced, _ := c.step(ctx, wr, agent.TypeProduction, "produce_publication", data, previous)
					previous = produced
				}
			}
		}
	}

	c.step(ctx, wr, agent.TypeAnalytics, "workflow_analytics", data, previous)
}

// researchDiscovery: Research discovers, Research analyzes trends,
// Analytics generates insights.
func (c *Coordinator) researchDiscovery(ctx context.Context, wr *workflowRun, data map[string]any) {
	discovered, ok := c.step(ctx, wr, agent.TypeResearch, "discover_research", data, nil)
	previous := discovered
	if ok {
		trends, _ := c.step(ctx, wr, agent.TypeResearch, "analyze_trends", data, previous)
		previous = trends
	}
	c.step(ctx, wr, agent.TypeAnalytics, "generate_insights", data, previous)
}

// publicationProduction: Production produces, Production distributes,
// Analytics analyzes performance.
func (c *Coordinator) publicationProduction(ctx context.Context, wr *workflowRun, data map[string]any) {
	produced, ok := c.step(ctx, wr, agent.TypeProduction, "produce_publication", data, nil)
	previous := produced
	if ok {
		distributed, _ := c.step(ctx, wr, agent.TypeProduction, "distribute_publication", data, previous)
		previous = distributed
	}
	c.step(ctx, wr, agent.TypeAnalytics, "analyze_performance", data, previous)
}

// resultFloat reads a numeric field from a step result, with a default
// when the field is absent.
func resultFloat(result map[string]any, key string, fallback float64) float64 {
	if result == nil {
		return fallback
	}
	switch n := result[key].(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return fallback
	}
}

func resultString(result map[string]any, key, fallback string) string {
	if result == nil {
		return fallback
	}
	if s, ok := result[key].(string); ok {
		return s
	}
	return fallback
}

func resultBool(result map[string]any, key string, fallback bool) bool {
	if result == nil {
		return fallback
	}
	if b, ok := result[key].(bool); ok {
		return b
	}
	return fallback
}
