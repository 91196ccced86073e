package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScheduler struct {
	requests []string // "<source>@<commit>"
	next     *time.Time
}

func (f *fakeScheduler) RequestUpdate(_ context.Context, source, commit string) error {
	f.requests = append(f.requests, source+"@"+commit)
	return nil
}

func (f *fakeScheduler) NextScheduled() *time.Time { return f.next }

const pushBody = `{
	"ref": "refs/heads/main",
	"after": "abc1234def5678900000000000000000000000ff",
	"repository": {"full_name": "acme/ord-metadata"}
}`

func sign(algo func() hash.Hash, prefix, secret, body string) string {
	mac := hmac.New(algo, []byte(secret))
	mac.Write([]byte(body))
	return prefix + hex.EncodeToString(mac.Sum(nil))
}

func postWebhook(h *WebhookHandlers, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", "/api/v1/webhook/github", strings.NewReader(body))
	req.Header.Set("X-GitHub-Event", "push")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.HandleGitHubWebhook(rec, req)
	return rec
}

func TestWebhookValidSha256Signature(t *testing.T) {
	sched := &fakeScheduler{}
	at := time.Now().Add(5 * time.Second)
	sched.next = &at
	h := &WebhookHandlers{Secret: "s3cret", Branch: "main", Scheduler: sched}

	rec := postWebhook(h, pushBody, map[string]string{
		"X-Hub-Signature-256": sign(sha256.New, "sha256=", "s3cret", pushBody),
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), `"accepted"`)
	assert.Contains(t, rec.Body.String(), "scheduledAt")
	require.Len(t, sched.requests, 1)
	assert.Equal(t, "webhook@abc1234def5678900000000000000000000000ff", sched.requests[0])
}

func TestWebhookLegacySha1Fallback(t *testing.T) {
	sched := &fakeScheduler{}
	h := &WebhookHandlers{Secret: "s3cret", Branch: "main", Scheduler: sched}

	rec := postWebhook(h, pushBody, map[string]string{
		"X-Hub-Signature": sign(sha1.New, "sha1=", "s3cret", pushBody),
	})

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, sched.requests, 1)
}

func TestWebhookInvalidSignatureRejected(t *testing.T) {
	sched := &fakeScheduler{}
	h := &WebhookHandlers{Secret: "s3cret", Branch: "main", Scheduler: sched}

	rec := postWebhook(h, pushBody, map[string]string{
		"X-Hub-Signature-256": sign(sha256.New, "sha256=", "wrong-secret", pushBody),
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")
	assert.Empty(t, sched.requests, "invalid signature must not schedule")
}

func TestWebhookMissingSignatureRejected(t *testing.T) {
	sched := &fakeScheduler{}
	h := &WebhookHandlers{Secret: "s3cret", Branch: "main", Scheduler: sched}

	rec := postWebhook(h, pushBody, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, sched.requests)
}

func TestWebhookNoSecretAcceptsUnsigned(t *testing.T) {
	sched := &fakeScheduler{}
	h := &WebhookHandlers{Branch: "main", Scheduler: sched}

	rec := postWebhook(h, pushBody, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Len(t, sched.requests, 1)
}

func TestWebhookIgnoresOtherBranches(t *testing.T) {
	sched := &fakeScheduler{}
	h := &WebhookHandlers{Branch: "main", Scheduler: sched}

	body := strings.Replace(pushBody, "refs/heads/main", "refs/heads/feature", 1)
	rec := postWebhook(h, body, nil)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "ignored")
	assert.Empty(t, sched.requests)
}

func TestWebhookPing(t *testing.T) {
	sched := &fakeScheduler{}
	h := &WebhookHandlers{Branch: "main", Scheduler: sched}

	req := httptest.NewRequest("POST", "/api/v1/webhook/github", strings.NewReader("{}"))
	req.Header.Set("X-GitHub-Event", "ping")
	rec := httptest.NewRecorder()
	h.HandleGitHubWebhook(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Contains(t, rec.Body.String(), "pong")
	assert.Empty(t, sched.requests)
}

func TestWebhookRejectsGet(t *testing.T) {
	h := &WebhookHandlers{Scheduler: &fakeScheduler{}}
	req := httptest.NewRequest("GET", "/api/v1/webhook/github", nil)
	rec := httptest.NewRecorder()
	h.HandleGitHubWebhook(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestWebhookBadJSON(t *testing.T) {
	sched := &fakeScheduler{}
	h := &WebhookHandlers{Scheduler: sched}

	rec := postWebhook(h, "{not json", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "VALIDATION_ERROR")
}
