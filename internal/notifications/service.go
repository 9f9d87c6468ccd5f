package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pitchcam/internal/config"
)

// Event identifies a notification type.
type Event string

const (
	EventStitchCompleted    Event = "stitch_completed"
	EventStitchDeadLettered Event = "stitch_dead_lettered"
	EventChecksumQuarantine Event = "checksum_quarantine"
	EventTest               Event = "test"
)

// Payload carries event fields keyed by name.
type Payload map[string]string

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
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	get := func(key string) string { return strings.TrimSpace(payload[key]) }
	switch event {
	case EventStitchCompleted:
		body := fmt.Sprintf("🎥 Session stitched: %s", get("session"))
		if file := get("file"); file != "" {
			body = fmt.Sprintf("%s\nFile: %s", body, file)
		}
		return message{
			title: "PitchCam - Stitch Complete",
			body:  body,
			tags:  []string{"pitchcam", "stitch", "completed"},
		}, true
	case EventStitchDeadLettered:
		body := fmt.Sprintf("❌ Stitching gave up on %s after %s attempts", get("session"), get("attempts"))
		if reason := get("error"); reason != "" {
			body = fmt.Sprintf("%s\n%s", body, reason)
		}
		return message{
			title:    "PitchCam - Stitch Failed",
			body:     body + "\nRun `pitchcam stitch retry` once fixed",
			tags:     []string{"pitchcam", "stitch", "alert"},
			priority: "high",
		}, true
	case EventChecksumQuarantine:
		return message{
			title:    "PitchCam - Checksum Mismatch",
			body:     fmt.Sprintf("⚠️ %s from %s failed verification and was quarantined as %s", get("file"), get("node"), get("quarantine")),
			tags:     []string{"pitchcam", "integrity", "alert"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "PitchCam - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"pitchcam", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", "pitchcam/"+config.Version)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
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
