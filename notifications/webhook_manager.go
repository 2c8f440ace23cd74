package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"retail-analytics/cache"
	"retail-analytics/database"
	"retail-analytics/helpers"
)

// EventChurnAlert is sent when a training run finds high-risk valuable customers
const EventChurnAlert = "churn.alert"

const (
	webhookCacheKey = "webhooks:active:"
	webhookCacheTTL = time.Hour
	userAgent       = "Retail-Analytics-Webhook/1.0"
)

// WebhookStore is the persistence the manager needs
type WebhookStore interface {
	GetActiveWebhooks(ctx context.Context, event string) ([]database.Webhook, error)
	SaveWebhookLog(ctx context.Context, log *database.WebhookLog) error
	UpdateWebhookStats(ctx context.Context, webhook *database.Webhook) error
}

// WebhookManager handles webhook notifications
type WebhookManager struct {
	store  WebhookStore
	redis  *cache.RedisClient
	client *http.Client
	wg     sync.WaitGroup
}

// WebhookPayload is the JSON body sent to webhooks
type WebhookPayload struct {
	Event     string      `json:"event"`
	SentAt    time.Time   `json:"sent_at"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Dashboard string      `json:"dashboard,omitempty"`
}

// ChurnAlert summarizes customers at risk after a training run
type ChurnAlert struct {
	Fingerprint    string   `json:"fingerprint"`
	HighRisk       int      `json:"high_risk"`
	ValueAtRisk    float64  `json:"value_at_risk"`
	TopCustomerIDs []string `json:"top_customer_ids"`
}

// NewWebhookManager creates a new webhook manager; redis may be nil
func NewWebhookManager(store WebhookStore, redis *cache.RedisClient) *WebhookManager {
	return &WebhookManager{
		store: store,
		redis: redis,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Broadcast delivers an event to every subscribed webhook in the background
func (wm *WebhookManager) Broadcast(event string, data interface{}) {
	if wm == nil || wm.store == nil {
		return
	}

	webhooks, err := wm.activeWebhooks(context.Background(), event)
	if err != nil {
		log.Printf("⚠️  Failed to load webhooks: %v", err)
		return
	}
	if len(webhooks) == 0 {
		return
	}

	payloadBytes, err := json.Marshal(CreatePayload(event, data))
	if err != nil {
		log.Printf("⚠️  Failed to marshal webhook payload: %v", err)
		return
	}

	for _, hook := range webhooks {
		wm.wg.Add(1)
		go func(hook database.Webhook) {
			defer wm.wg.Done()
			wm.deliverWebhook(hook, event, payloadBytes)
		}(hook)
	}
}

// Wait blocks until in-flight deliveries finish
func (wm *WebhookManager) Wait() {
	wm.wg.Wait()
}

func (wm *WebhookManager) activeWebhooks(ctx context.Context, event string) ([]database.Webhook, error) {
	key := webhookCacheKey + event
	var cached []database.Webhook
	if wm.redis.Enabled() {
		if err := wm.redis.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	webhooks, err := wm.store.GetActiveWebhooks(ctx, event)
	if err != nil {
		return nil, err
	}

	if wm.redis.Enabled() {
		_ = wm.redis.Set(ctx, key, webhooks, webhookCacheTTL)
	}
	return webhooks, nil
}

// CreatePayload builds the webhook body with a readable message
func CreatePayload(event string, data interface{}) WebhookPayload {
	var message string
	switch v := data.(type) {
	case ChurnAlert:
		message = fmt.Sprintf("⚠️ CHURN ALERT: %d high-risk customers, %s predicted value at risk",
			v.HighRisk, helpers.FormatCurrency(v.ValueAtRisk, "£"))
	case map[string]interface{}:
		if id, ok := v["job_id"]; ok {
			message = fmt.Sprintf("Job %v: %s", id, event)
		}
	}
	if message == "" {
		message = fmt.Sprintf("Retail analytics event: %s", event)
	}

	return WebhookPayload{
		Event:   event,
		SentAt:  time.Now().UTC(),
		Message: message,
		Data:    data,
	}
}

func (wm *WebhookManager) deliverWebhook(hook database.Webhook, event string, payload []byte) {
	maxRetries := hook.RetryCount
	if maxRetries <= 0 {
		maxRetries = 1
	}
	client := wm.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}

	var statusCode int
	var lastErr error
	delay := time.Duration(hook.RetryDelaySeconds) * time.Second

	for attempt := 1; attempt <= maxRetries; attempt++ {
		statusCode, lastErr = wm.send(client, hook, payload)
		if lastErr == nil {
			wm.logDelivery(&hook, event, "SUCCESS", statusCode, "", attempt)
			return
		}
		log.Printf("🔹 Webhook %s attempt %d/%d failed: %v", hook.Name, attempt, maxRetries, lastErr)

		if attempt < maxRetries {
			time.Sleep(delay)
			delay *= 2
		}
	}

	wm.logDelivery(&hook, event, "FAILED", statusCode, lastErr.Error(), maxRetries)
}

func (wm *WebhookManager) send(client *http.Client, hook database.Webhook, payload []byte) (int, error) {
	req, err := http.NewRequest(hook.Method, hook.URL, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if hook.AuthHeader != "" {
		req.Header.Set(hook.AuthHeader, hook.AuthValue)
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp.StatusCode, nil
}

func (wm *WebhookManager) logDelivery(hook *database.Webhook, event, status string, code int, errMsg string, attempt int) {
	ctx := context.Background()
	now := time.Now()

	entry := &database.WebhookLog{
		WebhookID:    hook.ID,
		Event:        event,
		TriggeredAt:  now,
		Status:       status,
		ErrorMessage: errMsg,
		RetryAttempt: attempt,
	}
	if code != 0 {
		entry.HTTPStatusCode = &code
	}
	if err := wm.store.SaveWebhookLog(ctx, entry); err != nil {
		log.Printf("⚠️  Failed to save webhook log: %v", err)
	}

	hook.LastTriggeredAt = &now
	if status == "SUCCESS" {
		hook.LastSuccessAt = &now
		hook.LastError = ""
		hook.TotalSent++
	} else {
		hook.LastError = errMsg
		hook.TotalFailed++
	}
	if err := wm.store.UpdateWebhookStats(ctx, hook); err != nil {
		log.Printf("⚠️  Failed to update webhook stats: %v", err)
	}
}

// RefreshCache drops cached webhook lists after configuration changes
func (wm *WebhookManager) RefreshCache(ctx context.Context) {
	if wm == nil {
		return
	}
	if n, err := wm.redis.DeletePrefix(ctx, webhookCacheKey); err == nil && n > 0 {
		log.Println("🔄 Webhook cache invalidated")
	}
}
