package decision

import (
	"crypto/md5" //nolint:gosec // bucket assignment, not security
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// DefaultStickyField is the input field used for sticky A/B assignment
// when none is configured.
const DefaultStickyField = "submission_id"

// Bucket is one named share of an A/B split.
type Bucket struct {
	Name    string
	Percent int
}

// ABConfig describes the deterministic variant assignment: the bucket
// split, the sticky input field, and an optional forced variant.
type ABConfig struct {
	Buckets  []Bucket
	StickyBy string
	Force    string
}

// DefaultABConfig is an even control/variant split sticky on
// submission_id.
func DefaultABConfig() ABConfig {
	return ABConfig{
		Buckets:  []Bucket{{Name: "control", Percent: 50}, {Name: "variant", Percent: 50}},
		StickyBy: DefaultStickyField,
	}
}

// ParseABSplit parses "name:pct,name:pct" into buckets. Percentages must
// sum to 100.
func ParseABSplit(s string) ([]Bucket, error) {
	var buckets []Bucket
	total := 0
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, pctStr, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("decision: malformed ab split entry %q", part)
		}
		pct, err := strconv.Atoi(strings.TrimSpace(pctStr))
		if err != nil || pct < 0 {
			return nil, fmt.Errorf("decision: malformed ab split percentage %q", pctStr)
		}
		buckets = append(buckets, Bucket{Name: strings.TrimSpace(name), Percent: pct})
		total += pct
	}
	if len(buckets) == 0 {
		return nil, fmt.Errorf("decision: empty ab split")
	}
	if total != 100 {
		return nil, fmt.Errorf("decision: ab split percentages sum to %d, want 100", total)
	}
	return buckets, nil
}

// ChooseVariant assigns a variant deterministically: the sticky field's
// value is hashed modulo 100 against the cumulative bucket split. A
// forced variant overrides; a missing sticky field falls into the first
// bucket. The function is pure: fixed inputs always yield the same
// variant.
func ChooseVariant(cfg ABConfig, input map[string]any) string {
	if cfg.Force != "" {
		return cfg.Force
	}
	if len(cfg.Buckets) == 0 {
		cfg = DefaultABConfig()
	}

	sticky := cfg.StickyBy
	if sticky == "" {
		sticky = DefaultStickyField
	}
	value, ok := input[sticky]
	if !ok || value == nil {
		return cfg.Buckets[0].Name
	}

	sum := md5.Sum([]byte(fmt.Sprint(value))) //nolint:gosec // bucket assignment
	slot := int(binary.BigEndian.Uint32(sum[:4]) % 100)

	cumulative := 0
	for _, b := range cfg.Buckets {
		cumulative += b.Percent
		if slot < cumulative {
			return b.Name
		}
	}
	return cfg.Buckets[len(cfg.Buckets)-1].Name
}
