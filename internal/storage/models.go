package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

type User struct {
	ID        string
	Email     string
	CreatedAt time.Time
}

// SubscriptionRecord is the persisted form of a subscription. Topics and
// sources are stored as JSON text columns.
type SubscriptionRecord struct {
	ID              string
	UserID          string
	TopicsJSON      string
	SourcesJSON     string
	Frequency       string
	Cron            string
	ItemCount       int
	Tone            string
	Enabled         bool
	RequireApproval bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// RunRecord is the persisted outcome of one newsletter run.
type RunRecord struct {
	ID             string
	SubscriptionID string
	Status         string
	Subject        string
	HTML           string
	Text           string
	ItemsJSON      string
	ErrorsJSON     string
	CandidateCount int
	SelectedCount  int
	UsedModel      bool
	StartedAt      time.Time
	FinishedAt     time.Time
	SentAt         time.Time
}
