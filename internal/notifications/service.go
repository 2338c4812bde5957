package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"digitflow/internal/config"
)

const userAgent = "digitflow/0.1.0"

// Event names a notification category.
type Event string

const (
	EventRetrainCompleted   Event = "retrain_completed"
	EventRetrainFailed      Event = "retrain_failed"
	EventReloadFailed       Event = "reload_failed"
	EventBootstrapCompleted Event = "bootstrap_completed"
	EventTest               Event = "test"
)

// Payload carries event fields. Unknown keys are ignored.
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		retrain:  cfg.Notifications.Retrain,
		errors:   cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	retrain  bool
	errors   bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, fields Payload) error {
	data, ok := n.format(event, fields)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) format(event Event, fields Payload) (payload, bool) {
	switch event {
	case EventRetrainCompleted:
		if !n.retrain {
			return payload{}, false
		}
		message := fmt.Sprintf("Model retrained on %d corrections", intField(fields, "corrections"))
		if failures := intField(fields, "decode_failures"); failures > 0 {
			message = fmt.Sprintf("%s (%d unreadable images skipped)", message, failures)
		}
		if version := stringField(fields, "model_version"); version != "" {
			message = fmt.Sprintf("%s\nVersion: %s", message, version)
		}
		return payload{
			title:   "digitflow - Retrain Complete",
			message: message,
			tags:    []string{"digitflow", "retrain", "completed"},
		}, true
	case EventBootstrapCompleted:
		if !n.retrain {
			return payload{}, false
		}
		return payload{
			title:   "digitflow - Baseline Trained",
			message: fmt.Sprintf("Baseline model trained on %d samples", intField(fields, "samples")),
			tags:    []string{"digitflow", "bootstrap", "completed"},
		}, true
	case EventRetrainFailed:
		if !n.errors {
			return payload{}, false
		}
		return payload{
			title:    "digitflow - Retrain Failed",
			message:  errorMessage("Retrain failed", stringField(fields, "stage"), stringField(fields, "error")),
			tags:     []string{"digitflow", "retrain", "alert"},
			priority: "high",
		}, true
	case EventReloadFailed:
		if !n.errors {
			return payload{}, false
		}
		message := errorMessage("Reload failed", "", stringField(fields, "error"))
		if version := stringField(fields, "model_version"); version != "" {
			message = fmt.Sprintf("%s\nSaved version %s is not serving yet; corrections stay unprocessed", message, version)
		}
		return payload{
			title:    "digitflow - Reload Failed",
			message:  message,
			tags:     []string{"digitflow", "reload", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return payload{
			title:    "digitflow - Test",
			message:  "Notification system test",
			tags:     []string{"digitflow", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func errorMessage(prefix, stage, detail string) string {
	var builder strings.Builder
	builder.WriteString(prefix)
	if stage = strings.TrimSpace(stage); stage != "" {
		builder.WriteString(" during ")
		builder.WriteString(stage)
	}
	builder.WriteString(": ")
	if detail = strings.TrimSpace(detail); detail != "" {
		builder.WriteString(detail)
	} else {
		builder.WriteString("unknown")
	}
	return builder.String()
}

func stringField(fields Payload, key string) string {
	switch v := fields[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func intField(fields Payload, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
