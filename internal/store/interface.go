package store

import (
	"context"
	"encoding/json"
	"time"
)

// PredictionRecord is one audited prediction.
type PredictionRecord struct {
	ID          string             `json:"id"`
	Variant     string             `json:"variant"`
	Probability float64            `json:"probability"`
	Margin      float64            `json:"margin"`
	Inputs      map[string]float64 `json:"inputs"`
	Explanation json.RawMessage    `json:"explanation,omitempty"`
	Warning     string             `json:"warning,omitempty"`
	CreatedAt   time.Time          `json:"created_at"`
}

// PredictionLog persists predictions when auditing is enabled.
type PredictionLog interface {
	// Save assigns ID and CreatedAt when empty.
	Save(ctx context.Context, rec *PredictionRecord) error
	// ListRecent returns newest first.
	ListRecent(ctx context.Context, limit int) ([]PredictionRecord, error)
	Close() error
}
