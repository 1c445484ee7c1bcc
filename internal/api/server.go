// Package api exposes the curation pipeline over HTTP: user and subscription
// CRUD, run triggers, and an MCP surface for the acquisition tools. Handlers
// are closures over a Deps struct so tests can wire fakes without globals.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/briefwire/briefwire/internal/digest"
	"github.com/briefwire/briefwire/internal/mail"
	"github.com/briefwire/briefwire/internal/pipeline"
	"github.com/briefwire/briefwire/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the HTTP handlers need.
type Deps struct {
	Store  *storage.Store
	Runner *pipeline.Runner
	Mailer mail.Sender
	Token  string
	Logger *slog.Logger
}

func (d Deps) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// NewHandler builds the HTTP router. Every route except the health check sits
// behind bearer auth.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/users", handleCreateUser(deps))
		r.Get("/users/{id}/subscriptions", handleListSubscriptions(deps))
		r.Post("/users/{id}/subscriptions", handleCreateSubscription(deps))
		r.Put("/users/{id}/subscriptions/{sid}", handleUpdateSubscription(deps))
		r.Get("/subscriptions/{sid}/runs", handleListRuns(deps))
		r.Post("/subscriptions/{sid}/run", handleTriggerRun(deps))
		r.Post("/runs/send-due", handleSendDue(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.Store.Ping(); err != nil {
			httpError(w, http.StatusServiceUnavailable, "api_error", "storage unavailable: %v", err)
			return
		}
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

type createUserRequest struct {
	Email string `json:"email"`
}

func handleCreateUser(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req createUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Email == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "email is required")
			return
		}

		user, err := deps.Store.UpsertUserByEmail(uuid.New().String(), req.Email)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save user: %v", err)
			return
		}
		writeJSON(w, digest.User{ID: user.ID, Email: user.Email})
	}
}

// SubscriptionRequest is the inbound shape for creating or updating a
// subscription. Enabled is a pointer so an omitted field defaults to true.
type SubscriptionRequest struct {
	Topics          []string            `json:"topics"`
	Sources         []digest.SourceSpec `json:"sources"`
	Frequency       digest.Frequency    `json:"frequency"`
	Cron            string              `json:"cron"`
	ItemCount       int                 `json:"item_count"`
	Tone            string              `json:"tone"`
	Enabled         *bool               `json:"enabled"`
	RequireApproval bool                `json:"require_approval"`
}

func (req *SubscriptionRequest) toSubscription(id, userID string) digest.Subscription {
	sub := digest.Subscription{
		ID:              id,
		UserID:          userID,
		Topics:          req.Topics,
		Sources:         req.Sources,
		Frequency:       req.Frequency,
		Cron:            req.Cron,
		ItemCount:       req.ItemCount,
		Tone:            req.Tone,
		Enabled:         true,
		RequireApproval: req.RequireApproval,
	}
	if req.Enabled != nil {
		sub.Enabled = *req.Enabled
	}
	if sub.Frequency == "" {
		sub.Frequency = digest.FrequencyWeekly
	}
	if sub.ItemCount == 0 {
		sub.ItemCount = digest.DefaultItems
	}
	return sub
}

func handleCreateSubscription(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")
		if _, err := deps.Store.GetUser(userID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "user not found")
			return
		} else if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get user: %v", err)
			return
		}

		sub, ok := decodeSubscriptionRequest(w, r, uuid.New().String(), userID)
		if !ok {
			return
		}

		rec, err := storage.EncodeSubscription(sub)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to encode subscription: %v", err)
			return
		}
		if err := deps.Store.CreateSubscription(rec); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save subscription: %v", err)
			return
		}
		writeJSON(w, sub)
	}
}

func handleUpdateSubscription(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")
		subID := chi.URLParam(r, "sid")

		existing, err := deps.Store.GetSubscription(subID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "subscription not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get subscription: %v", err)
			return
		}
		if existing.UserID != userID {
			httpError(w, http.StatusNotFound, "not_found", "subscription not found")
			return
		}

		sub, ok := decodeSubscriptionRequest(w, r, subID, userID)
		if !ok {
			return
		}

		rec, err := storage.EncodeSubscription(sub)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to encode subscription: %v", err)
			return
		}
		if err := deps.Store.UpdateSubscription(rec); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update subscription: %v", err)
			return
		}
		writeJSON(w, sub)
	}
}

// decodeSubscriptionRequest reads and validates the request body. It writes
// the error response itself and reports success via the bool.
func decodeSubscriptionRequest(w http.ResponseWriter, r *http.Request, id, userID string) (digest.Subscription, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req SubscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return digest.Subscription{}, false
	}
	sub := req.toSubscription(id, userID)
	if err := sub.Validate(); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid subscription: %v", err)
		return digest.Subscription{}, false
	}
	return sub, true
}

func handleListSubscriptions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := chi.URLParam(r, "id")

		recs, err := deps.Store.ListSubscriptionsByUser(userID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list subscriptions: %v", err)
			return
		}

		subs := make([]digest.Subscription, 0, len(recs))
		for _, rec := range recs {
			sub, err := storage.DecodeSubscription(rec)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to decode subscription %s: %v", rec.ID, err)
				return
			}
			subs = append(subs, sub)
		}
		writeJSON(w, subs)
	}
}

// RunResponse is the outbound shape of a stored run.
type RunResponse struct {
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscription_id"`
	Status         string         `json:"status"`
	Subject        string         `json:"subject"`
	CandidateCount int            `json:"candidate_count"`
	SelectedCount  int            `json:"selected_count"`
	UsedModel      bool           `json:"used_model"`
	Errors         []digest.Error `json:"errors,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	FinishedAt     time.Time      `json:"finished_at"`
	SentAt         *time.Time     `json:"sent_at,omitempty"`
}

func runResponse(rec storage.RunRecord) RunResponse {
	resp := RunResponse{
		ID:             rec.ID,
		SubscriptionID: rec.SubscriptionID,
		Status:         rec.Status,
		Subject:        rec.Subject,
		CandidateCount: rec.CandidateCount,
		SelectedCount:  rec.SelectedCount,
		UsedModel:      rec.UsedModel,
		StartedAt:      rec.StartedAt,
		FinishedAt:     rec.FinishedAt,
	}
	if rec.ErrorsJSON != "" {
		// Stored errors are trusted; a decode failure means a corrupt row
		// and the errors are simply omitted.
		_ = json.Unmarshal([]byte(rec.ErrorsJSON), &resp.Errors)
	}
	if !rec.SentAt.IsZero() {
		at := rec.SentAt
		resp.SentAt = &at
	}
	return resp
}

func handleListRuns(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subID := chi.URLParam(r, "sid")
		limit := parseIntParam(r, "limit", 20, 100)

		recs, err := deps.Store.ListRunsBySubscription(subID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list runs: %v", err)
			return
		}

		runs := make([]RunResponse, 0, len(recs))
		for _, rec := range recs {
			runs = append(runs, runResponse(rec))
		}
		writeJSON(w, runs)
	}
}

func handleTriggerRun(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subID := chi.URLParam(r, "sid")

		rec, err := deps.Store.GetSubscription(subID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "subscription not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get subscription: %v", err)
			return
		}

		run, err := executeRun(r.Context(), deps, rec, false)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "run failed: %v", err)
			return
		}
		writeJSON(w, runResponse(run))
	}
}

// SendDueResponse summarizes a send-due sweep.
type SendDueResponse struct {
	Triggered int           `json:"triggered"`
	Sent      int           `json:"sent"`
	Runs      []RunResponse `json:"runs"`
}

func handleSendDue(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := deps.Store.ListDueSubscriptions()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list due subscriptions: %v", err)
			return
		}

		resp := SendDueResponse{Runs: []RunResponse{}}
		for _, rec := range recs {
			run, err := executeRun(r.Context(), deps, rec, true)
			if err != nil {
				deps.logger().Error("send-due run failed", "subscription_id", rec.ID, "error", err)
				continue
			}
			resp.Triggered++
			if run.Status == string(digest.StatusSent) {
				resp.Sent++
			}
			resp.Runs = append(resp.Runs, runResponse(run))
		}
		writeJSON(w, resp)
	}
}

// executeRun runs the pipeline for one subscription and persists the outcome.
// When send is true and the run is approved, the newsletter is mailed to the
// owning user and the run marked sent; a delivery failure is recorded on the
// run but never fails it.
func executeRun(ctx context.Context, deps Deps, rec storage.SubscriptionRecord, send bool) (storage.RunRecord, error) {
	sub, err := storage.DecodeSubscription(rec)
	if err != nil {
		return storage.RunRecord{}, fmt.Errorf("decoding subscription %s: %w", rec.ID, err)
	}

	outcome := deps.Runner.Run(ctx, sub)

	itemsJSON, err := json.Marshal(outcome.Newsletter.Items)
	if err != nil {
		return storage.RunRecord{}, fmt.Errorf("encoding items: %w", err)
	}

	run := storage.RunRecord{
		ID:             uuid.New().String(),
		SubscriptionID: rec.ID,
		Status:         string(outcome.Status),
		Subject:        outcome.Newsletter.Subject,
		HTML:           outcome.Newsletter.HTML,
		Text:           outcome.Newsletter.Text,
		ItemsJSON:      string(itemsJSON),
		CandidateCount: outcome.CandidateCount,
		SelectedCount:  outcome.SelectedCount,
		UsedModel:      outcome.UsedModel,
		StartedAt:      outcome.StartedAt,
		FinishedAt:     outcome.FinishedAt,
	}

	runErrors := outcome.Errors

	var sendErr error
	if send && outcome.Status == digest.StatusApproved {
		sendErr = deliver(deps, rec.UserID, outcome.Newsletter)
		if sendErr != nil {
			runErrors = append(runErrors, digest.Error{
				Origin:  "email",
				Code:    "send_failed",
				Message: sendErr.Error(),
			})
		}
	}

	if len(runErrors) > 0 {
		errorsJSON, err := json.Marshal(runErrors)
		if err != nil {
			return storage.RunRecord{}, fmt.Errorf("encoding errors: %w", err)
		}
		run.ErrorsJSON = string(errorsJSON)
	}

	if err := deps.Store.SaveRun(run); err != nil {
		return storage.RunRecord{}, fmt.Errorf("saving run: %w", err)
	}

	if send && outcome.Status == digest.StatusApproved && sendErr == nil {
		sentAt := time.Now().UTC()
		if err := deps.Store.MarkRunSent(run.ID, sentAt); err != nil {
			return storage.RunRecord{}, fmt.Errorf("marking run sent: %w", err)
		}
		run.Status = string(digest.StatusSent)
		run.SentAt = sentAt
	}
	return run, nil
}

func deliver(deps Deps, userID string, nl digest.Newsletter) error {
	user, err := deps.Store.GetUser(userID)
	if err != nil {
		return fmt.Errorf("looking up recipient: %w", err)
	}
	return deps.Mailer.Send(user.Email, nl)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
