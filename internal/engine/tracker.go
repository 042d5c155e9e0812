// internal/engine/tracker.go
package engine

import (
	"fmt"
	"os"
	"path/filepath"

	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
)

var jsonAPI = json.ConfigCompatibleWithStandardLibrary

// Tracker persists the session document after every mutation, so a crash
// never loses more than the step in flight.
type Tracker struct {
	dir    string
	logger *zap.Logger
}

// NewTracker builds a tracker writing into dir.
func NewTracker(dir string, logger *zap.Logger) *Tracker {
	return &Tracker{dir: dir, logger: logger.Named("engine.tracker")}
}

// Checkpoint writes the session to <dir>/<session-id>.json atomically
// (write to temp, rename over).
func (t *Tracker) Checkpoint(session *schemas.TaskSession) error {
	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		return fmt.Errorf("task log dir: %w", err)
	}
	data, err := jsonAPI.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("session marshal: %w", err)
	}

	final := filepath.Join(t.dir, session.ID+".json")
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("session write: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("session rename: %w", err)
	}
	return nil
}

// Load reads a persisted session back by id.
func (t *Tracker) Load(id string) (*schemas.TaskSession, error) {
	data, err := os.ReadFile(filepath.Join(t.dir, id+".json"))
	if err != nil {
		return nil, fmt.Errorf("session read: %w", err)
	}
	var session schemas.TaskSession
	if err := jsonAPI.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("session decode: %w", err)
	}
	return &session, nil
}

// List returns the ids of all persisted sessions, unordered.
func (t *Tracker) List() ([]string, error) {
	entries, err := os.ReadDir(t.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if filepath.Ext(name) == ".json" {
			ids = append(ids, name[:len(name)-len(".json")])
		}
	}
	return ids, nil
}
