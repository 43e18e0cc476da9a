package learning

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Pattern thresholds: a cluster of size >= 2 is a pattern; a point whose
// cluster frequency is below anomalyFreq is an anomaly.
const (
	patternMinSize = 2
	anomalyFreq    = 0.10
)

// Pattern is a recurring data shape.
type Pattern struct {
	Key        string
	Size       int
	Confidence float64
}

// Clusterer groups data points by a composite key of their field names
// and inferred value kinds.
type Clusterer struct {
	mu       sync.Mutex
	clusters map[string]int
	total    int
}

// NewClusterer builds an empty clusterer.
func NewClusterer() *Clusterer {
	return &Clusterer{clusters: map[string]int{}}
}

// ClusterKey derives the composite key for a data point: sorted field
// names joined with their inferred value kinds.
func ClusterKey(point map[string]any) string {
	keys := make([]string, 0, len(point))
	for k := range point {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + ":" + valueKind(point[k])
	}
	return strings.Join(parts, "|")
}

func valueKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case float64, float32, int, int64:
		return "number"
	case []any:
		return "list"
	case map[string]any:
		return "map"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Observe adds a point to its cluster.
func (c *Clusterer) Observe(point map[string]any) {
	key := ClusterKey(point)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clusters[key]++
	c.total++
}

// Patterns returns every cluster of size >= 2 with confidence
// min(1, size/10).
func (c *Clusterer) Patterns() []Pattern {
	c.mu.Lock()
	defer c.mu.Unlock()

	var out []Pattern
	for key, size := range c.clusters {
		if size < patternMinSize {
			continue
		}
		confidence := float64(size) / 10
		if confidence > 1 {
			confidence = 1
		}
		out = append(out, Pattern{Key: key, Size: size, Confidence: confidence})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// AnomalyScore reports whether a point's cluster is rare (frequency below
// 10%) and returns 1 - frequency as the anomaly score.
func (c *Clusterer) AnomalyScore(point map[string]any) (score float64, anomalous bool) {
	key := ClusterKey(point)
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.total == 0 {
		return 0, false
	}
	freq := float64(c.clusters[key]) / float64(c.total)
	return 1 - freq, freq < anomalyFreq
}

func (c *Clusterer) snapshot() (map[string]int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make(map[string]int, len(c.clusters))
	for k, v := range c.clusters {
		cp[k] = v
	}
	return cp, c.total
}

func (c *Clusterer) restore(clusters map[string]int, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if clusters == nil {
		clusters = map[string]int{}
	}
	c.clusters = clusters
	c.total = total
}
