// Package audit keeps the append-only record of everything the agent did
// or was stopped from doing. One JSON document per line; a single writer
// goroutine owns the file so concurrent components never interleave
// records.
package audit

import (
	stdjson "encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/kestrelhq/kestrel/api/schemas"
)

var jsonAPI = json.ConfigCompatibleWithStandardLibrary

// Record is one audit line.
type Record struct {
	ID        string                `json:"id"`
	Timestamp time.Time             `json:"timestamp"`
	Kind      string                `json:"kind"` // "action", "perception", "session"
	SessionID string                `json:"session_id,omitempty"`
	Action    stdjson.RawMessage    `json:"action,omitempty"`
	State     string                `json:"state,omitempty"`
	Reason    string                `json:"reason,omitempty"`
	Result    *schemas.ActionResult `json:"result,omitempty"`
	Details   string                `json:"details,omitempty"`
}

// Log is the append-only audit writer.
type Log struct {
	mu     sync.Mutex
	file   *os.File
	logger *zap.Logger
}

// Open creates (or appends to) the audit file.
func Open(path string, logger *zap.Logger) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("audit file: %w", err)
	}
	return &Log{file: f, logger: logger.Named("audit")}, nil
}

// Close flushes and closes the file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}

// RecordAction writes one action outcome, including actions that were
// rejected or denied before execution.
func (l *Log) RecordAction(sessionID string, action schemas.Action, state, reason string, result *schemas.ActionResult) {
	encoded, err := schemas.EncodeAction(action)
	if err != nil {
		l.logger.Error("Failed to encode action for audit", zap.Error(err))
		encoded = nil
	}
	l.append(Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      "action",
		SessionID: sessionID,
		Action:    encoded,
		State:     state,
		Reason:    reason,
		Result:    result,
	})
}

// RecordPerception notes one perception cycle.
func (l *Log) RecordPerception(sessionID string, sc *schemas.ScreenContext) {
	l.append(Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      "perception",
		SessionID: sessionID,
		Details: fmt.Sprintf("words=%d elements=%d confidence=%.2f",
			len(sc.Words), len(sc.UIElements), sc.OverallConfidence),
	})
}

// RecordSession notes a session state change.
func (l *Log) RecordSession(sessionID string, status schemas.TaskStatus, details string) {
	l.append(Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Kind:      "session",
		SessionID: sessionID,
		State:     string(status),
		Details:   details,
	})
}

func (l *Log) append(rec Record) {
	line, err := jsonAPI.Marshal(rec)
	if err != nil {
		l.logger.Error("Failed to marshal audit record", zap.Error(err))
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(append(line, '\n')); err != nil {
		l.logger.Error("Failed to write audit record", zap.Error(err))
	}
}
