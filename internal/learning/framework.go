package learning

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dtecho/folio/internal/memory"
)

// similarityThreshold gates supervised matches used for recommendations.
const similarityThreshold = 0.6

// Recommendation is one suggestion produced by Recommend.
type Recommendation struct {
	Type       string
	Confidence float64
	Action     map[string]any
	Reasoning  string
}

// Framework persists experiences and fans each one out to the four
// learners. Updates are atomic with respect to the caller: either the
// experience is stored and every learner updated, or an error is
// returned and no learner state changes.
type Framework struct {
	agentID     string
	experiences *memory.ExperienceDB
	logger      *slog.Logger

	mu         sync.Mutex
	rl         *QLearner
	supervised *SupervisedLearner
	clusterer  *Clusterer
	meta       *MetaLearner
}

// NewFramework builds a framework with fresh learners.
func NewFramework(agentID string, experiences *memory.ExperienceDB, logger *slog.Logger) *Framework {
	return &Framework{
		agentID:     agentID,
		experiences: experiences,
		logger:      logger,
		rl:          NewQLearner(),
		supervised:  NewSupervisedLearner(),
		clusterer:   NewClusterer(),
		meta:        NewMetaLearner(),
	}
}

// QLearner exposes the reinforcement learner for action selection.
func (f *Framework) QLearner() *QLearner {
	return f.rl
}

// Learn persists one experience and updates all four learners. The
// reinforcement reward is +1 for success and -1 for failure; states are
// derived by hashing the action's input and output.
func (f *Framework) Learn(ctx context.Context, actionType string, input, output map[string]any, success bool, metrics map[string]float64, feedback map[string]any) (string, error) {
	id, err := f.experiences.Log(ctx, f.agentID, actionType, input, output, success, metrics, feedback)
	if err != nil {
		return "", fmt.Errorf("learning: persist experience: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	reward := -1.0
	if success {
		reward = 1.0
	}
	f.rl.Update(StateKey(input), actionType, reward, StateKey(output))
	f.supervised.Add(actionType, input, output, success)
	f.clusterer.Observe(input)
	f.meta.Observe(success)

	if strategy, ok := f.meta.Strategy(); ok {
		f.rl.SetParams(strategy.Alpha, strategy.Epsilon)
	}
	return id, nil
}

// Recommend merges successful supervised matches for the given context
// with the meta-learning strategy adjustment. With no history it returns
// only the meta recommendation (or nothing), never an error.
func (f *Framework) Recommend(ctx context.Context, actionType string, input map[string]any) []Recommendation {
	f.mu.Lock()
	defer f.mu.Unlock()

	var recs []Recommendation
	for _, m := range f.supervised.FindSimilar(input, actionType, similarityThreshold) {
		if !m.Success {
			continue
		}
		recs = append(recs, Recommendation{
			Type:       "historical_success",
			Confidence: m.Similarity,
			Action:     m.Output,
			Reasoning:  fmt.Sprintf("similar %s succeeded with similarity %.2f", actionType, m.Similarity),
		})
	}

	if strategy, ok := f.meta.Strategy(); ok {
		recs = append(recs, Recommendation{
			Type:       "exploration_adjustment",
			Confidence: 0.7,
			Action:     map[string]any{"alpha": strategy.Alpha, "epsilon": strategy.Epsilon},
			Reasoning:  "recent success rate suggests a " + strategy.Posture + " posture",
		})
	}
	return recs
}

// Patterns exposes the clusterer's recurring shapes.
func (f *Framework) Patterns() []Pattern {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clusterer.Patterns()
}

// AnomalyScore scores a data point against the observed clusters.
func (f *Framework) AnomalyScore(point map[string]any) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clusterer.AnomalyScore(point)
}

// state is the serialized learner state blob for agent persistence.
type state struct {
	Q          map[string]map[string]float64 `json:"q"`
	Samples    map[string][]Sample           `json:"samples"`
	Clusters   map[string]int                `json:"clusters"`
	ClusterN   int                           `json:"cluster_total"`
	MetaWindow []float64                     `json:"meta_window"`
}

// Snapshot serializes all learner state.
func (f *Framework) Snapshot() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	clusters, total := f.clusterer.snapshot()
	blob := state{
		Q:          f.rl.snapshot(),
		Samples:    f.supervised.snapshot(),
		Clusters:   clusters,
		ClusterN:   total,
		MetaWindow: f.meta.snapshot(),
	}
	b, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("learning: snapshot: %w", err)
	}
	return b, nil
}

// Restore replaces all learner state from a snapshot blob.
func (f *Framework) Restore(b []byte) error {
	var blob state
	if err := json.Unmarshal(b, &blob); err != nil {
		return fmt.Errorf("learning: restore: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.rl.restore(blob.Q)
	f.supervised.restore(blob.Samples)
	f.clusterer.restore(blob.Clusters, blob.ClusterN)
	f.meta.restore(blob.MetaWindow)
	return nil
}
