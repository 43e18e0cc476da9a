package journalsync

import (
	"strings"
	"time"

	"github.com/dtecho/folio/internal/model"
)

// timestampFields are probed in order when extracting a payload's
// modification time for latest_wins.
var timestampFields = []string{"updated_at", "modified_at", "last_updated", "timestamp"}

// defaultMergeFields are the payload fields the merge strategy always
// takes from the local side.
var defaultMergeFields = []string{"agent_analysis", "quality_score", "recommendations"}

// resolve applies a resolution strategy to diverging payloads. ok is
// false when the strategy defers to manual resolution.
func resolve(strategy model.ResolutionStrategy, local, external map[string]any, mergeFields []string, now time.Time) (map[string]any, bool) {
	switch strategy {
	case model.ResolveLatestWins:
		return latestWins(local, external), true
	case model.ResolveMerge:
		return mergePayloads(local, external, mergeFields, now), true
	case model.ResolveManual:
		return nil, false
	case model.ResolveAgentPriority:
		if local != nil {
			return local, true
		}
		return latestWins(local, external), true
	case model.ResolveOJSPriority:
		if external != nil {
			return external, true
		}
		return latestWins(local, external), true
	default:
		return latestWins(local, external), true
	}
}

// latestWins picks the side with the newer extracted timestamp. A side
// without any timestamp loses; a tie keeps local.
func latestWins(local, external map[string]any) map[string]any {
	lt, _ := payloadTimestamp(local)
	et, _ := payloadTimestamp(external)
	if et.After(lt) {
		return external
	}
	return local
}

// mergePayloads shallow-merges external under local additions, forces
// the configured fields from the local side, and stamps last_updated.
func mergePayloads(local, external map[string]any, mergeFields []string, now time.Time) map[string]any {
	merged := make(map[string]any, len(external)+len(local)+1)
	for k, v := range external {
		merged[k] = v
	}
	for k, v := range local {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	if len(mergeFields) == 0 {
		mergeFields = defaultMergeFields
	}
	for _, field := range mergeFields {
		if v, ok := local[field]; ok {
			merged[field] = v
		}
	}
	merged["last_updated"] = now.UTC().Format(time.RFC3339)
	return merged
}

// payloadTimestamp extracts the modification time from the first present
// timestamp field.
func payloadTimestamp(payload map[string]any) (time.Time, bool) {
	for _, field := range timestampFields {
		s, ok := payload[field].(string)
		if !ok {
			continue
		}
		if t, ok := parseTimestamp(s); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseTimestamp accepts RFC 3339 values plus bare date-times, which are
// interpreted as UTC.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), true
	}
	// Bare "2006-01-02T15:04:05" without an offset is taken as UTC.
	if strings.Contains(s, "T") {
		if t, err := time.Parse(time.RFC3339Nano, s+"Z"); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
