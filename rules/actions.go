package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"docwatch/docsource"
	"docwatch/ledger"
)

// RegisterBuiltinActions installs the standard handlers. The notifier is
// the same chat-platform sender the poller uses; httpClient posts
// webhooks and should carry a timeout.
func (e *Engine) RegisterBuiltinActions(notifier docsource.Notifier, httpClient *http.Client) {
	e.RegisterAction(ActionNotify, notifyHandler(notifier))
	e.RegisterAction(ActionCreateTask, createTaskHandler)
	e.RegisterAction(ActionWebhook, webhookHandler(httpClient))
	e.RegisterAction(ActionAggregate, aggregateHandler)
}

func notifyHandler(notifier docsource.Notifier) ActionHandler {
	return func(ctx context.Context, rule Rule, change ledger.DocumentChange) (string, error) {
		body := rule.Action.Template
		if body == "" {
			body = fmt.Sprintf("Rule matched: document %s changed (%s) by %s.",
				change.DocToken, change.ChangeType, change.NewModifiedUser)
		}
		if err := notifier.Notify(ctx, rule.Action.Target, "Rule triggered", body); err != nil {
			return "", fmt.Errorf("notify %s: %w", rule.Action.Target, err)
		}
		return fmt.Sprintf("notified %s", rule.Action.Target), nil
	}
}

// createTaskHandler builds the task description; actually filing the task
// is delegated to whatever consumes the execution result.
func createTaskHandler(ctx context.Context, rule Rule, change ledger.DocumentChange) (string, error) {
	title := rule.Action.Template
	if title == "" {
		title = fmt.Sprintf("Review change to %s", change.DocToken)
	}
	return fmt.Sprintf("task created: %s (change %s by %s)", title, change.ChangeType, change.NewModifiedUser), nil
}

type webhookPayload struct {
	Rule      Rule                  `json:"rule"`
	DocToken  string                `json:"doc_token"`
	Change    ledger.DocumentChange `json:"change"`
	Timestamp time.Time             `json:"timestamp"`
}

func webhookHandler(client *http.Client) ActionHandler {
	return func(ctx context.Context, rule Rule, change ledger.DocumentChange) (string, error) {
		payload, err := json.Marshal(webhookPayload{
			Rule:      rule,
			DocToken:  change.DocToken,
			Change:    change,
			Timestamp: time.Now(),
		})
		if err != nil {
			return "", fmt.Errorf("marshal webhook payload: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, rule.Action.Target, bytes.NewReader(payload))
		if err != nil {
			return "", fmt.Errorf("build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			return "", fmt.Errorf("post webhook to %s: %w", rule.Action.Target, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return "", fmt.Errorf("webhook %s returned %d", rule.Action.Target, resp.StatusCode)
		}
		return fmt.Sprintf("webhook delivered to %s (%d)", rule.Action.Target, resp.StatusCode), nil
	}
}

// aggregateHandler marks the change as queued for a batched summary.
// Batching itself is a declared extension point, not implemented here.
func aggregateHandler(ctx context.Context, rule Rule, change ledger.DocumentChange) (string, error) {
	return fmt.Sprintf("change %s queued for aggregation", change.ID), nil
}
