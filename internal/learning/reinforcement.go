// Package learning contains the four learners that consume experience
// records — reinforcement, supervised, unsupervised, and meta — plus the
// framework facade that persists experiences and fans updates out to all
// four atomically with respect to the caller.
package learning

import (
	"math/rand"
	"sync"

	"github.com/dtecho/folio/internal/model"
)

// Default Q-learning hyperparameters.
const (
	DefaultAlpha   = 0.1
	DefaultGamma   = 0.9
	DefaultEpsilon = 0.1
)

// QLearner maintains a tabular state -> action -> value function with
// epsilon-greedy action selection.
type QLearner struct {
	mu      sync.Mutex
	q       map[string]map[string]float64
	alpha   float64
	gamma   float64
	epsilon float64
	rng     *rand.Rand
}

// NewQLearner builds a learner with the default hyperparameters.
func NewQLearner() *QLearner {
	return &QLearner{
		q:       map[string]map[string]float64{},
		alpha:   DefaultAlpha,
		gamma:   DefaultGamma,
		epsilon: DefaultEpsilon,
		rng:     rand.New(rand.NewSource(rand.Int63())), //nolint:gosec // exploration noise
	}
}

// StateKey derives a stable state identifier from an action's input.
func StateKey(input map[string]any) string {
	return "s_" + model.ContentHash(input)[:16]
}

// SelectAction picks an action epsilon-greedily: with probability epsilon
// a uniformly random available action, otherwise the argmax of Q[state].
func (l *QLearner) SelectAction(state string, available []string) string {
	if len(available) == 0 {
		return ""
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rng.Float64() < l.epsilon {
		return available[l.rng.Intn(len(available))]
	}

	best := available[0]
	bestValue := l.value(state, best)
	for _, a := range available[1:] {
		if v := l.value(state, a); v > bestValue {
			best, bestValue = a, v
		}
	}
	return best
}

// Update applies the Q-learning rule for feedback (state, action, reward,
// next state): Q[s][a] += alpha * (r + gamma*max_a' Q[s'][a'] - Q[s][a]).
func (l *QLearner) Update(state, action string, reward float64, nextState string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	current := l.value(state, action)
	next := l.maxValue(nextState)
	updated := current + l.alpha*(reward+l.gamma*next-current)

	row := l.q[state]
	if row == nil {
		row = map[string]float64{}
		l.q[state] = row
	}
	row[action] = updated
}

// Value returns Q[state][action] (zero when unseen).
func (l *QLearner) Value(state, action string) float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value(state, action)
}

// SetParams adjusts the learning rate and exploration rate, typically
// from a meta-learning strategy.
func (l *QLearner) SetParams(alpha, epsilon float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if alpha > 0 {
		l.alpha = alpha
	}
	if epsilon >= 0 {
		l.epsilon = epsilon
	}
}

// Params returns the current (alpha, epsilon).
func (l *QLearner) Params() (alpha, epsilon float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.alpha, l.epsilon
}

func (l *QLearner) value(state, action string) float64 {
	if row, ok := l.q[state]; ok {
		return row[action]
	}
	return 0
}

func (l *QLearner) maxValue(state string) float64 {
	row, ok := l.q[state]
	if !ok || len(row) == 0 {
		return 0
	}
	first := true
	var maxVal float64
	for _, v := range row {
		if first || v > maxVal {
			maxVal = v
			first = false
		}
	}
	return maxVal
}

// snapshot exports the Q table for persistence.
func (l *QLearner) snapshot() map[string]map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[string]map[string]float64, len(l.q))
	for s, row := range l.q {
		cp := make(map[string]float64, len(row))
		for a, v := range row {
			cp[a] = v
		}
		out[s] = cp
	}
	return out
}

// restore replaces the Q table from a snapshot.
func (l *QLearner) restore(q map[string]map[string]float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if q == nil {
		q = map[string]map[string]float64{}
	}
	l.q = q
}
