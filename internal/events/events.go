// Package events writes structured rows into the event log, inside the same
// transaction as the change they describe.
package events

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lherron/contactsync/internal/domain"
)

// Writer handles writing events to the event log
type Writer struct {
	db *sql.DB
}

// NewWriter creates a new event writer
func NewWriter(db *sql.DB) *Writer {
	return &Writer{db: db}
}

// LogEvent writes an event to the event log
func (w *Writer) LogEvent(tx *sql.Tx, event *domain.Event) error {
	query := `
		INSERT INTO event_log (resource_type, resource_id, event_type, payload)
		VALUES (?, ?, ?, ?)
	`

	executor := w.getExecutor(tx)
	_, err := executor.Exec(query, event.ResourceType, event.ResourceID, event.EventType, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogMerge logs one merge outcome for a person or group row.
func (w *Writer) LogMerge(tx *sql.Tx, resourceType string, resourceID int64, eventType string, payload map[string]any) error {
	event := &domain.Event{
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		EventType:    eventType,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		s := string(data)
		event.Payload = &s
	}
	return w.LogEvent(tx, event)
}

type executor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
}

// getExecutor returns the transaction if provided, otherwise the database
func (w *Writer) getExecutor(tx *sql.Tx) executor {
	if tx != nil {
		return tx
	}
	return w.db
}
