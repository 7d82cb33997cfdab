package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// ExtractMsg asks a worker to process one document.
type ExtractMsg struct {
	FileName      string    `json:"file_name"`
	CorrelationID string    `json:"correlation_id"`
	Message       string    `json:"message,omitempty"`
	RequestedAt   time.Time `json:"requested_at"`
}

// DeleteMsg asks a worker to delete documents once none of them is still
// processing.
type DeleteMsg struct {
	FileNames      []string  `json:"file_names"`
	DeleteEntities bool      `json:"delete_entities"`
	CorrelationID  string    `json:"correlation_id"`
	RequestedAt    time.Time `json:"requested_at"`
}

// NewCorrelationID returns a random id that ties log lines of one request
// to the worker run it triggered.
func NewCorrelationID() string {
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return id
}

// PublishExtract enqueues an extraction for name. An empty correlationID
// gets a fresh one, which is returned.
func PublishExtract(ctx context.Context, p Publisher, name, correlationID, message string) (string, error) {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	body, err := json.Marshal(ExtractMsg{
		FileName:      name,
		CorrelationID: correlationID,
		Message:       message,
		RequestedAt:   time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return correlationID, p.Publish(ctx, ExtractQueue, body)
}

// PublishDelete enqueues a deletion of names.
func PublishDelete(ctx context.Context, p Publisher, names []string, deleteEntities bool, correlationID string) (string, error) {
	if correlationID == "" {
		correlationID = NewCorrelationID()
	}
	body, err := json.Marshal(DeleteMsg{
		FileNames:      names,
		DeleteEntities: deleteEntities,
		CorrelationID:  correlationID,
		RequestedAt:    time.Now().UTC(),
	})
	if err != nil {
		return "", err
	}
	return correlationID, p.Publish(ctx, DeleteQueue, body)
}
