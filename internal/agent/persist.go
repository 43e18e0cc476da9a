package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dtecho/folio/internal/model"
)

// snapshot is the on-disk form of an agent's durable self-state.
type snapshot struct {
	ID           string          `json:"id"`
	Type         Type            `json:"type"`
	Capabilities []string        `json:"capabilities"`
	State        State           `json:"state"`
	TotalActions int             `json:"total_actions"`
	SuccessRate  float64         `json:"success_rate"`
	Pending      []model.Task    `json:"pending"`
	Completed    []model.Task    `json:"completed"`
	Learning     json.RawMessage `json:"learning"`
}

// Save writes the agent's state and learning blob to path atomically
// (write to a temp file in the same directory, then rename).
func (a *Agent) Save(path string) error {
	learningBlob, err := a.learning.Snapshot()
	if err != nil {
		return fmt.Errorf("agent: save: %w", err)
	}

	a.mu.Lock()
	snap := snapshot{
		ID:           a.id,
		Type:         a.agentType,
		Capabilities: a.capabilities,
		State:        a.state,
		TotalActions: a.totalActions,
		SuccessRate:  a.successRate,
		Pending:      append([]model.Task(nil), a.pending...),
		Completed:    append([]model.Task(nil), a.completed...),
		Learning:     learningBlob,
	}
	a.mu.Unlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("agent: save: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp")
	if err != nil {
		return fmt.Errorf("agent: save: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("agent: save: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("agent: save: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("agent: save: %w", err)
	}
	return nil
}

// Load restores state saved by Save. A missing file is a first run, not
// an error; it is logged and the agent keeps its fresh state.
func (a *Agent) Load(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger.Info("no saved state, starting fresh", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("agent: load: %w", err)
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("agent: load: %w", err)
	}
	if snap.ID != a.id {
		return fmt.Errorf("agent: load: state belongs to %q, not %q", snap.ID, a.id)
	}

	if len(snap.Learning) > 0 {
		if err := a.learning.Restore(snap.Learning); err != nil {
			return fmt.Errorf("agent: load: %w", err)
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.totalActions = snap.TotalActions
	a.successRate = snap.SuccessRate
	a.pending = snap.Pending
	a.completed = snap.Completed
	a.state = StateActive
	return nil
}
