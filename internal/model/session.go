package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of an import session.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionFailed    SessionStatus = "failed"
)

// LogLevel classifies import session log entries.
type LogLevel string

const (
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// LogEntry is one row in an import session's ordered log.
type LogEntry struct {
	Timestamp time.Time
	Level     LogLevel
	Message   string
	Detail    string // optional payload, e.g. an external id
}

// ImportSession records one invocation of a sync pipeline: its status,
// counts, an ordered structured log and an error list. It is created with
// status running and finalized exactly once; Complete and Fail are no-ops
// on an already finalized session.
type ImportSession struct {
	ID            string
	IntegrationID string
	UserID        string
	Status        SessionStatus
	StartedAt     time.Time
	FinishedAt    time.Time // zero while running

	AccountsImported     int
	TransactionsImported int
	TransactionsSkipped  int // already present, matched by dedup key

	Logs   []LogEntry
	Errors []string
}

// NewImportSession opens a session with status running.
func NewImportSession(integrationID, userID string) *ImportSession {
	return &ImportSession{
		ID:            uuid.NewString(),
		IntegrationID: integrationID,
		UserID:        userID,
		Status:        SessionRunning,
		StartedAt:     time.Now().UTC(),
	}
}

// Logf appends a formatted entry to the session log.
func (s *ImportSession) Logf(level LogLevel, detail, format string, args ...any) {
	s.Logs = append(s.Logs, LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   fmt.Sprintf(format, args...),
		Detail:    detail,
	})
}

// AddError appends a formatted message to the error list and mirrors it
// into the log. Item-level errors accumulate here without failing the run.
func (s *ImportSession) AddError(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	s.Errors = append(s.Errors, msg)
	s.Logf(LogError, "", "%s", msg)
}

// Warnings returns the warn-level log messages.
func (s *ImportSession) Warnings() []string {
	var out []string
	for _, e := range s.Logs {
		if e.Level == LogWarn {
			out = append(out, e.Message)
		}
	}
	return out
}

// Complete finalizes the session as completed.
func (s *ImportSession) Complete() {
	if s.Status != SessionRunning {
		return
	}
	s.Status = SessionCompleted
	s.FinishedAt = time.Now().UTC()
}

// Fail finalizes the session as failed.
func (s *ImportSession) Fail() {
	if s.Status != SessionRunning {
		return
	}
	s.Status = SessionFailed
	s.FinishedAt = time.Now().UTC()
}
