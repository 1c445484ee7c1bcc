package storage

import (
	"encoding/json"
	"fmt"

	"github.com/briefwire/briefwire/internal/digest"
)

// EncodeSubscription converts a domain subscription into its persisted form.
func EncodeSubscription(sub digest.Subscription) (SubscriptionRecord, error) {
	topics, err := json.Marshal(sub.Topics)
	if err != nil {
		return SubscriptionRecord{}, fmt.Errorf("encoding topics: %w", err)
	}
	sources, err := json.Marshal(sub.Sources)
	if err != nil {
		return SubscriptionRecord{}, fmt.Errorf("encoding sources: %w", err)
	}
	return SubscriptionRecord{
		ID:              sub.ID,
		UserID:          sub.UserID,
		TopicsJSON:      string(topics),
		SourcesJSON:     string(sources),
		Frequency:       string(sub.Frequency),
		Cron:            sub.Cron,
		ItemCount:       sub.ItemCount,
		Tone:            sub.Tone,
		Enabled:         sub.Enabled,
		RequireApproval: sub.RequireApproval,
	}, nil
}

// DecodeSubscription converts a persisted record back into the domain form.
func DecodeSubscription(rec SubscriptionRecord) (digest.Subscription, error) {
	sub := digest.Subscription{
		ID:              rec.ID,
		UserID:          rec.UserID,
		Frequency:       digest.Frequency(rec.Frequency),
		Cron:            rec.Cron,
		ItemCount:       rec.ItemCount,
		Tone:            rec.Tone,
		Enabled:         rec.Enabled,
		RequireApproval: rec.RequireApproval,
	}
	if rec.TopicsJSON != "" {
		if err := json.Unmarshal([]byte(rec.TopicsJSON), &sub.Topics); err != nil {
			return digest.Subscription{}, fmt.Errorf("decoding topics: %w", err)
		}
	}
	if rec.SourcesJSON != "" {
		if err := json.Unmarshal([]byte(rec.SourcesJSON), &sub.Sources); err != nil {
			return digest.Subscription{}, fmt.Errorf("decoding sources: %w", err)
		}
	}
	return sub, nil
}
