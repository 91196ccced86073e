package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha1" // #nosec G505 - legacy X-Hub-Signature support
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"hash"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/ordserve/internal/logfields"
	"git.home.luguber.info/inful/ordserve/internal/metrics"
	"git.home.luguber.info/inful/ordserve/internal/server/responses"
)

// maxWebhookBody caps GitHub webhook payloads; push events stay far below.
const maxWebhookBody = 1 << 20

// UpdateScheduler is the slice of the scheduler the webhook handler needs.
type UpdateScheduler interface {
	RequestUpdate(ctx context.Context, source, commit string) error
	NextScheduled() *time.Time
}

// WebhookHandlers receives GitHub push events and turns them into update
// requests.
type WebhookHandlers struct {
	Secret    string
	Branch    string
	Scheduler UpdateScheduler
	Metrics   metrics.Recorder
}

type pushPayload struct {
	Ref        string `json:"ref"`
	After      string `json:"after"`
	Repository struct {
		FullName string `json:"full_name"`
	} `json:"repository"`
}

// HandleGitHubWebhook serves POST /api/v1/webhook/github.
func (h *WebhookHandlers) HandleGitHubWebhook(w http.ResponseWriter, r *http.Request) {
	rec := h.Metrics
	if rec == nil {
		rec = metrics.NoopRecorder{}
	}

	if r.Method != http.MethodPost {
		responses.WriteError(w, http.StatusMethodNotAllowed,
			responses.CodeValidation, "method not allowed", r.Method)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		responses.WriteError(w, http.StatusBadRequest,
			responses.CodeValidation, "failed to read request body", "")
		return
	}

	if h.Secret != "" {
		if !h.validSignature(body, r.Header.Get("X-Hub-Signature-256"), r.Header.Get("X-Hub-Signature")) {
			rec.IncWebhookReceived(false)
			slog.Warn("Webhook signature validation failed", slog.String("remote_addr", r.RemoteAddr))
			responses.WriteError(w, http.StatusUnauthorized,
				responses.CodeUnauthorized, "webhook signature validation failed", "")
			return
		}
	}

	// Acknowledged no-ops reply 202 like scheduled updates; the status field
	// carries the reason.
	event := r.Header.Get("X-GitHub-Event")
	if event == "ping" {
		rec.IncWebhookReceived(true)
		responses.WriteJSON(w, http.StatusAccepted, responses.WebhookAccepted{
			Status: "ignored", Message: "pong", Timestamp: time.Now().UTC(),
		})
		return
	}
	if event != "push" {
		rec.IncWebhookReceived(true)
		responses.WriteJSON(w, http.StatusAccepted, responses.WebhookAccepted{
			Status: "ignored", Message: "unsupported event: " + event, Timestamp: time.Now().UTC(),
		})
		return
	}

	var payload pushPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		rec.IncWebhookReceived(false)
		responses.WriteError(w, http.StatusBadRequest,
			responses.CodeValidation, "invalid JSON payload", "")
		return
	}

	if h.Branch != "" && payload.Ref != "refs/heads/"+h.Branch {
		rec.IncWebhookReceived(true)
		responses.WriteJSON(w, http.StatusAccepted, responses.WebhookAccepted{
			Status: "ignored", Message: "push to untracked ref " + payload.Ref, Timestamp: time.Now().UTC(),
		})
		return
	}

	rec.IncWebhookReceived(true)
	slog.Info("Push received",
		logfields.Repository(payload.Repository.FullName),
		logfields.Commit(payload.After))

	if err := h.Scheduler.RequestUpdate(r.Context(), "webhook", payload.After); err != nil {
		responses.WriteError(w, http.StatusInternalServerError,
			responses.CodeInternal, "failed to schedule update", "")
		return
	}

	responses.WriteJSON(w, http.StatusAccepted, responses.WebhookAccepted{
		Status:      "accepted",
		ScheduledAt: h.Scheduler.NextScheduled(),
		Timestamp:   time.Now().UTC(),
	})
}

// validSignature checks the SHA-256 signature header, falling back to the
// legacy SHA-1 one when only that is present.
func (h *WebhookHandlers) validSignature(body []byte, sig256, sig1 string) bool {
	if strings.HasPrefix(sig256, "sha256=") {
		return checkHMAC(sha256.New, h.Secret, body, strings.TrimPrefix(sig256, "sha256="))
	}
	if strings.HasPrefix(sig1, "sha1=") {
		return checkHMAC(sha1.New, h.Secret, body, strings.TrimPrefix(sig1, "sha1="))
	}
	return false
}

func checkHMAC(algo func() hash.Hash, secret string, body []byte, provided string) bool {
	mac := hmac.New(algo, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(provided))
}
