package storage

import (
	"errors"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_RunsMigrations(t *testing.T) {
	s := newTestStore(t)
	versions, err := s.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations() error = %v", err)
	}
	if len(versions) == 0 || versions[0] != 1 {
		t.Errorf("versions = %v, want migration 1 applied", versions)
	}
}

func TestUpsertUserByEmail(t *testing.T) {
	s := newTestStore(t)

	u1, err := s.UpsertUserByEmail("user-1", "reader@example.com")
	if err != nil {
		t.Fatalf("UpsertUserByEmail() error = %v", err)
	}
	if u1.ID != "user-1" || u1.Email != "reader@example.com" {
		t.Errorf("user = %+v", u1)
	}

	// Second upsert with a different id keeps the existing user.
	u2, err := s.UpsertUserByEmail("user-2", "reader@example.com")
	if err != nil {
		t.Fatalf("second UpsertUserByEmail() error = %v", err)
	}
	if u2.ID != "user-1" {
		t.Errorf("id = %q, want existing user-1", u2.ID)
	}
}

func TestGetUser_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetUser("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func testSubscriptionRecord(id, userID string) SubscriptionRecord {
	return SubscriptionRecord{
		ID:          id,
		UserID:      userID,
		TopicsJSON:  `["ai","chips"]`,
		SourcesJSON: `[{"kind":"feed","value":"https://feeds.techcrunch.com/rss"}]`,
		Frequency:   "weekly",
		ItemCount:   8,
		Tone:        "professional",
		Enabled:     true,
	}
}

func TestSubscriptionCRUD(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpsertUserByEmail("user-1", "reader@example.com"); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	rec := testSubscriptionRecord("sub-1", "user-1")
	if err := s.CreateSubscription(rec); err != nil {
		t.Fatalf("CreateSubscription() error = %v", err)
	}

	got, err := s.GetSubscription("sub-1")
	if err != nil {
		t.Fatalf("GetSubscription() error = %v", err)
	}
	if got.TopicsJSON != rec.TopicsJSON || got.ItemCount != 8 || !got.Enabled {
		t.Errorf("got = %+v", got)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not set")
	}

	got.Tone = "casual"
	got.Enabled = false
	if err := s.UpdateSubscription(got); err != nil {
		t.Fatalf("UpdateSubscription() error = %v", err)
	}
	updated, err := s.GetSubscription("sub-1")
	if err != nil {
		t.Fatalf("re-reading subscription: %v", err)
	}
	if updated.Tone != "casual" || updated.Enabled {
		t.Errorf("updated = %+v", updated)
	}

	list, err := s.ListSubscriptionsByUser("user-1")
	if err != nil {
		t.Fatalf("ListSubscriptionsByUser() error = %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d subscriptions, want 1", len(list))
	}
}

func TestUpdateSubscription_NotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateSubscription(testSubscriptionRecord("missing", "user-1"))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListDueSubscriptions_OnlyEnabled(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpsertUserByEmail("user-1", "reader@example.com"); err != nil {
		t.Fatalf("creating user: %v", err)
	}

	enabled := testSubscriptionRecord("sub-on", "user-1")
	disabled := testSubscriptionRecord("sub-off", "user-1")
	disabled.Enabled = false
	if err := s.CreateSubscription(enabled); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSubscription(disabled); err != nil {
		t.Fatal(err)
	}

	due, err := s.ListDueSubscriptions()
	if err != nil {
		t.Fatalf("ListDueSubscriptions() error = %v", err)
	}
	if len(due) != 1 || due[0].ID != "sub-on" {
		t.Errorf("due = %+v", due)
	}
}

func TestRunLifecycle(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpsertUserByEmail("user-1", "reader@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSubscription(testSubscriptionRecord("sub-1", "user-1")); err != nil {
		t.Fatal(err)
	}

	started := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	rec := RunRecord{
		ID:             "run-1",
		SubscriptionID: "sub-1",
		Status:         "approved",
		Subject:        "This week in AI",
		HTML:           "<html></html>",
		Text:           "This week in AI",
		ItemsJSON:      `[{"title":"t","url":"https://example.com/1"}]`,
		ErrorsJSON:     `[]`,
		CandidateCount: 12,
		SelectedCount:  3,
		UsedModel:      true,
		StartedAt:      started,
		FinishedAt:     started.Add(40 * time.Second),
	}
	if err := s.SaveRun(rec); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if got.Subject != rec.Subject || got.CandidateCount != 12 || !got.UsedModel {
		t.Errorf("got = %+v", got)
	}
	if !got.SentAt.IsZero() {
		t.Errorf("sent_at = %v, want zero", got.SentAt)
	}

	sentAt := started.Add(time.Minute)
	if err := s.MarkRunSent("run-1", sentAt); err != nil {
		t.Fatalf("MarkRunSent() error = %v", err)
	}
	got, err = s.GetRun("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != "sent" || !got.SentAt.Equal(sentAt) {
		t.Errorf("after send: %+v", got)
	}
}

func TestListRunsBySubscription_NewestFirst(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.UpsertUserByEmail("user-1", "reader@example.com"); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateSubscription(testSubscriptionRecord("sub-1", "user-1")); err != nil {
		t.Fatal(err)
	}

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	names := []string{"run-a", "run-b", "run-c"}
	for i, name := range names {
		err := s.SaveRun(RunRecord{
			ID:             name,
			SubscriptionID: "sub-1",
			Status:         "approved",
			StartedAt:      base.AddDate(0, 0, i),
			FinishedAt:     base.AddDate(0, 0, i).Add(time.Minute),
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	runs, err := s.ListRunsBySubscription("sub-1", 2)
	if err != nil {
		t.Fatalf("ListRunsBySubscription() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if runs[0].ID != "run-c" || runs[1].ID != "run-b" {
		t.Errorf("order = %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestGetRun_NotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetRun("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
