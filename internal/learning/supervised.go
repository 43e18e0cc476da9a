package learning

import (
	"math"
	"strings"
	"sync"
)

// Sample bounds: at most maxSamples labeled pairs per action type; on
// overflow the oldest dropOnOverflow are discarded.
const (
	maxSamples     = 100
	dropOnOverflow = 50
)

// Sample is one labeled input -> output pair.
type Sample struct {
	Input   map[string]any
	Output  map[string]any
	Success bool
}

// Match is a similar historical sample with its similarity score.
type Match struct {
	Input      map[string]any
	Output     map[string]any
	Success    bool
	Similarity float64
}

// SupervisedLearner retains recent labeled pairs per action type and
// answers similarity queries against them.
type SupervisedLearner struct {
	mu      sync.Mutex
	samples map[string][]Sample
}

// NewSupervisedLearner builds an empty learner.
func NewSupervisedLearner() *SupervisedLearner {
	return &SupervisedLearner{samples: map[string][]Sample{}}
}

// Add records a labeled pair for an action type, evicting the oldest half
// of the window when it overflows.
func (l *SupervisedLearner) Add(actionType string, input, output map[string]any, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	window := append(l.samples[actionType], Sample{Input: input, Output: output, Success: success})
	if len(window) > maxSamples {
		window = window[dropOnOverflow:]
	}
	l.samples[actionType] = window
}

// Len returns the window size for an action type.
func (l *SupervisedLearner) Len(actionType string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.samples[actionType])
}

// FindSimilar returns samples of the given action type whose similarity
// to input meets threshold, most similar first is not guaranteed — the
// window order (oldest first) is preserved.
func (l *SupervisedLearner) FindSimilar(input map[string]any, actionType string, threshold float64) []Match {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Match
	for _, s := range l.samples[actionType] {
		sim := Similarity(input, s.Input)
		if sim >= threshold {
			out = append(out, Match{Input: s.Input, Output: s.Output, Success: s.Success, Similarity: sim})
		}
	}
	return out
}

// Similarity scores two inputs as the arithmetic mean of (a) Jaccard
// similarity over key sets and (b) the average per-shared-key value
// similarity.
func Similarity(a, b map[string]any) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	union := map[string]bool{}
	for k := range a {
		union[k] = true
	}
	for k := range b {
		union[k] = true
	}
	var shared []string
	for k := range a {
		if _, ok := b[k]; ok {
			shared = append(shared, k)
		}
	}
	jaccard := float64(len(shared)) / float64(len(union))

	var valueSim float64
	if len(shared) > 0 {
		var sum float64
		for _, k := range shared {
			sum += valueSimilarity(a[k], b[k])
		}
		valueSim = sum / float64(len(shared))
	}
	return (jaccard + valueSim) / 2
}

// valueSimilarity compares two values: numerics by relative distance,
// strings by case-insensitive equality or substring containment.
func valueSimilarity(a, b any) float64 {
	if na, aok := toFloat(a); aok {
		if nb, bok := toFloat(b); bok {
			denom := math.Max(math.Abs(na), math.Abs(nb))
			if denom == 0 {
				return 1
			}
			return 1 - math.Abs(na-nb)/denom
		}
		return 0
	}
	if sa, aok := a.(string); aok {
		sb, bok := b.(string)
		if !bok {
			return 0
		}
		la, lb := strings.ToLower(sa), strings.ToLower(sb)
		switch {
		case la == lb:
			return 1
		case strings.Contains(la, lb) || strings.Contains(lb, la):
			return 0.5
		default:
			return 0
		}
	}
	if ba, aok := a.(bool); aok {
		if bb, bok := b.(bool); bok && ba == bb {
			return 1
		}
		return 0
	}
	return 0
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// snapshot exports the sample windows for persistence.
func (l *SupervisedLearner) snapshot() map[string][]Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string][]Sample, len(l.samples))
	for k, v := range l.samples {
		out[k] = append([]Sample(nil), v...)
	}
	return out
}

func (l *SupervisedLearner) restore(samples map[string][]Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if samples == nil {
		samples = map[string][]Sample{}
	}
	l.samples = samples
}
