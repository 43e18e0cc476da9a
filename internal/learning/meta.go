package learning

import "sync"

// Meta-learning window bounds and strategy thresholds.
const (
	metaWindow      = 50
	metaMinSamples  = 5
	lowSuccessMean  = 0.6
	highSuccessMean = 0.8
)

// Strategy is the hyperparameter adjustment a meta-learner recommends.
type Strategy struct {
	Alpha   float64
	Epsilon float64
	// Posture names the adjustment for logging and recommendations.
	Posture string
}

// MetaLearner watches recent action outcomes and recommends exploration
// parameters: explore more when struggling, exploit when succeeding.
type MetaLearner struct {
	mu     sync.Mutex
	window []float64
}

// NewMetaLearner builds an empty learner.
func NewMetaLearner() *MetaLearner {
	return &MetaLearner{}
}

// Observe appends one outcome (1 for success, 0 for failure), keeping at
// most the 50 most recent.
func (l *MetaLearner) Observe(success bool) {
	v := 0.0
	if success {
		v = 1.0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.window = append(l.window, v)
	if len(l.window) > metaWindow {
		l.window = l.window[len(l.window)-metaWindow:]
	}
}

// Strategy returns the recommended hyperparameters once at least five
// observations exist. The second return is false before that.
func (l *MetaLearner) Strategy() (Strategy, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.window) < metaMinSamples {
		return Strategy{}, false
	}
	var sum float64
	for _, v := range l.window {
		sum += v
	}
	mean := sum / float64(len(l.window))

	switch {
	case mean < lowSuccessMean:
		return Strategy{Alpha: 0.15, Epsilon: 0.20, Posture: "explore"}, true
	case mean > highSuccessMean:
		return Strategy{Alpha: 0.05, Epsilon: 0.05, Posture: "exploit"}, true
	default:
		return Strategy{Alpha: 0.10, Epsilon: 0.10, Posture: "steady"}, true
	}
}

func (l *MetaLearner) snapshot() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]float64(nil), l.window...)
}

func (l *MetaLearner) restore(window []float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.window = window
}
