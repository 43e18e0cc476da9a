package folio

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dtecho/folio/internal/agent"
	"github.com/dtecho/folio/internal/decision"
	"github.com/dtecho/folio/internal/storage"
)

// capabilitiesFor declares what each agent role can do.
func capabilitiesFor(t agent.Type) []string {
	switch t {
	case agent.TypeResearch:
		return []string{"literature_search", "trend_analysis", "insight_generation"}
	case agent.TypeSubmission:
		return []string{"manuscript_intake", "completeness_check", "quality_assessment"}
	case agent.TypeEditorial:
		return []string{"editorial_decision", "reviewer_matching", "desk_review"}
	case agent.TypeReview:
		return []string{"reviewer_assignment", "review_tracking", "reminder_management"}
	case agent.TypeQuality:
		return []string{"plagiarism_check", "formatting_check", "reference_validation"}
	case agent.TypeProduction:
		return []string{"typesetting", "format_conversion", "distribution"}
	case agent.TypeAnalytics:
		return []string{"metric_collection", "performance_reporting", "workflow_analysis"}
	}
	return nil
}

// profileFor wires the coordination graph: which actions each agent
// reacts to and who it notifies or escalates to.
func profileFor(t agent.Type) agent.Profile {
	switch t {
	case agent.TypeResearch:
		return agent.Profile{
			Triggers:      map[string]bool{"produce_publication": true},
			Notifications: map[agent.Type]bool{agent.TypeSubmission: true, agent.TypeAnalytics: true},
			DataSharing:   map[agent.Type]bool{agent.TypeSubmission: true},
		}
	case agent.TypeSubmission:
		return agent.Profile{
			Triggers:      map[string]bool{"discover_research": true},
			Notifications: map[agent.Type]bool{agent.TypeEditorial: true},
			Escalations:   map[agent.Type]bool{agent.TypeEditorial: true},
			DataSharing:   map[agent.Type]bool{agent.TypeEditorial: true, agent.TypeAnalytics: true},
		}
	case agent.TypeEditorial:
		return agent.Profile{
			Triggers:      map[string]bool{"assess_submission": true},
			Notifications: map[agent.Type]bool{agent.TypeReview: true},
			Escalations:   map[agent.Type]bool{agent.TypeAnalytics: true},
			DataSharing:   map[agent.Type]bool{agent.TypeReview: true, agent.TypeQuality: true},
		}
	case agent.TypeReview:
		return agent.Profile{
			Triggers:      map[string]bool{"editorial_decision": true},
			Notifications: map[agent.Type]bool{agent.TypeEditorial: true, agent.TypeQuality: true},
			Escalations:   map[agent.Type]bool{agent.TypeEditorial: true},
			DataSharing:   map[agent.Type]bool{agent.TypeEditorial: true},
		}
	case agent.TypeQuality:
		return agent.Profile{
			Triggers:      map[string]bool{"assign_reviewers": true},
			Notifications: map[agent.Type]bool{agent.TypeProduction: true},
			Escalations:   map[agent.Type]bool{agent.TypeEditorial: true},
			DataSharing:   map[agent.Type]bool{agent.TypeProduction: true},
		}
	case agent.TypeProduction:
		return agent.Profile{
			Triggers:      map[string]bool{"quality_validation": true},
			Notifications: map[agent.Type]bool{agent.TypeAnalytics: true},
			Escalations:   map[agent.Type]bool{agent.TypeEditorial: true},
			DataSharing:   map[agent.Type]bool{agent.TypeAnalytics: true},
		}
	case agent.TypeAnalytics:
		return agent.Profile{
			Triggers: map[string]bool{
				"assess_submission":   true,
				"editorial_decision":  true,
				"produce_publication": true,
			},
			Notifications: map[agent.Type]bool{agent.TypeEditorial: true},
			DataSharing: map[agent.Type]bool{
				agent.TypeResearch: true, agent.TypeEditorial: true, agent.TypeProduction: true,
			},
		}
	}
	return agent.Profile{}
}

// processFor returns the work hook for each agent role.
func processFor(t agent.Type) agent.ProcessFunc {
	switch t {
	case agent.TypeResearch:
		return processResearch
	case agent.TypeSubmission:
		return processSubmission
	case agent.TypeEditorial:
		return processEditorial
	case agent.TypeReview:
		return processReview
	case agent.TypeQuality:
		return processQuality
	case agent.TypeProduction:
		return processProduction
	}
	// Analytics is wired separately: its hook records analysis artifacts
	// and needs the store.
	return nil
}

func processResearch(_ context.Context, data map[string]any, _ *decision.Decision) (map[string]any, error) {
	topics, _ := data["topics"].([]any)
	searched := len(topics)
	if searched == 0 {
		searched = 1
	}
	return map[string]any{
		"sources_searched": searched * 3,
		"findings_count":   searched,
		"topics":           data["topics"],
	}, nil
}

// processSubmission scores manuscript completeness: a base of 0.4 plus
// 0.15 per present metadata field.
func processSubmission(_ context.Context, data map[string]any, _ *decision.Decision) (map[string]any, error) {
	score := 0.4
	for _, field := range []string{"title", "abstract", "authors", "keywords"} {
		if v, ok := data[field]; ok && v != nil && v != "" {
			score += 0.15
		}
	}
	if score > 1.0 {
		score = 1.0
	}
	return map[string]any{
		"manuscript_id": data["manuscript_id"],
		"quality_score": score,
		"complete":      score >= 0.7,
	}, nil
}

func processEditorial(_ context.Context, data map[string]any, _ *decision.Decision) (map[string]any, error) {
	score := chainFloat(data, "quality_score", 0.75)
	verdict := "accept"
	switch {
	case score < 0.5:
		verdict = "reject"
	case score < 0.7:
		verdict = "revise"
	}
	return map[string]any{
		"decision":      verdict,
		"quality_score": score,
	}, nil
}

func processReview(_ context.Context, data map[string]any, _ *decision.Decision) (map[string]any, error) {
	return map[string]any{
		"manuscript_id":      data["manuscript_id"],
		"reviewers_assigned": 3,
		"review_deadline":    time.Now().UTC().Add(14 * 24 * time.Hour).Format(time.RFC3339),
	}, nil
}

func processQuality(_ context.Context, data map[string]any, _ *decision.Decision) (map[string]any, error) {
	flagged, _ := data["flagged"].(bool)
	return map[string]any{
		"approved": !flagged,
		"checks":   []string{"plagiarism", "formatting", "references"},
	}, nil
}

func processProduction(_ context.Context, data map[string]any, _ *decision.Decision) (map[string]any, error) {
	return map[string]any{
		"manuscript_id":  data["manuscript_id"],
		"publication_id": "pub_" + uuid.NewString(),
		"formats":        []string{"pdf", "html"},
		"published":      true,
	}, nil
}

// processAnalyticsWith records every analytics run as a strategic
// analysis artifact before reporting.
func processAnalyticsWith(store *storage.Store, agentID string) agent.ProcessFunc {
	return func(ctx context.Context, data map[string]any, _ *decision.Decision) (map[string]any, error) {
		report := map[string]any{
			"report_id":         "rep_" + uuid.NewString(),
			"metrics_collected": len(data),
			"generated_at":      time.Now().UTC().Format(time.RFC3339),
		}
		if prev, ok := data["previous_result"].(map[string]any); ok {
			report["observed"] = prev
		}
		analysisID, err := store.InsertAnalysis(ctx, agentID, "workflow_report", report)
		if err != nil {
			return nil, err
		}
		report["analysis_id"] = analysisID
		return report, nil
	}
}

// chainFloat looks up a numeric key in the step data, falling back to
// the previous step's result.
func chainFloat(data map[string]any, key string, fallback float64) float64 {
	if v, ok := numeric(data[key]); ok {
		return v
	}
	if prev, ok := data["previous_result"].(map[string]any); ok {
		if v, ok := numeric(prev[key]); ok {
			return v
		}
	}
	return fallback
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
