package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/philippzhuravlev/event-aggregator/internal/logger"
)

const maxWebhookBody = 1 << 20

// WebhookHandler ingests facebook push notifications. Delivery is
// at-least-once: a repeated notification just re-syncs the page, which the
// upsert path makes harmless.
type WebhookHandler struct {
	appSecret   string
	verifyToken string

	sync   syncService
	logger logger.Logger
}

func NewWebhook(appSecret string, verifyToken string, sync syncService, l logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		appSecret:   appSecret,
		verifyToken: verifyToken,
		sync:        sync,
		logger:      l,
	}
}

// handleVerify answers facebook's subscription handshake.
func (h *WebhookHandler) handleVerify() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("hub.mode") != "subscribe" || q.Get("hub.verify_token") != h.verifyToken {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		_, _ = w.Write([]byte(q.Get("hub.challenge")))
	})
}

type webhookEntry struct {
	ID      string `json:"id"`
	Changes []struct {
		Field string `json:"field"`
	} `json:"changes"`
}

type webhookPayload struct {
	Object string         `json:"object"`
	Entry  []webhookEntry `json:"entry"`
}

// handleNotify verifies the payload signature then syncs every affected page.
// Always answers 200 on verified payloads so facebook does not retry forever;
// sync failures are logged and left for the next scheduled run.
func (h *WebhookHandler) handleNotify() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
		if err != nil {
			http.Error(w, "Failed to read request body", http.StatusBadRequest)
			return
		}

		if !h.validSignature(r.Header.Get("X-Hub-Signature-256"), body) {
			h.logger.Warn("Rejected webhook with bad signature")
			http.Error(w, "Invalid signature", http.StatusForbidden)
			return
		}

		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil || payload.Object != "page" {
			http.Error(w, "Invalid payload", http.StatusBadRequest)
			return
		}

		for _, entry := range payload.Entry {
			if !entryTouchesEvents(entry) {
				continue
			}

			summary, err := h.sync.SyncPage(r.Context(), entry.ID)
			if err != nil {
				h.logger.Error("Webhook-triggered sync failed", "page_id", entry.ID, "error", err)
				continue
			}
			h.logger.Info("Webhook-triggered sync finished",
				"page_id", entry.ID,
				"events_added", summary.EventsAdded,
				"events_updated", summary.EventsUpdated,
			)
		}

		_, _ = w.Write([]byte("EVENT_RECEIVED"))
	})
}

// entryTouchesEvents filters notifications down to event changes; an entry
// without a changes list is synced anyway rather than dropped.
func entryTouchesEvents(entry webhookEntry) bool {
	if len(entry.Changes) == 0 {
		return true
	}
	for _, change := range entry.Changes {
		if change.Field == "events" {
			return true
		}
	}
	return false
}

func (h *WebhookHandler) validSignature(header string, body []byte) bool {
	provided, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(provided), []byte(expected))
}
