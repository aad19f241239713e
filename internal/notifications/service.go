package notifications

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gen2brain/beeep"

	"spotrip/internal/config"
)

const userAgent = "spotrip/0.1.0"

// Event names a rip milestone.
type Event string

const (
	EventRunStarted   Event = "run_started"
	EventRunCompleted Event = "run_completed"
	EventTrackFailed  Event = "track_failed"
	EventError        Event = "error"
	EventTest         Event = "test"
)

// Payload carries event fields. Known keys: "source", "count", "succeeded",
// "failed", "aborted", "duration", "track", "error", "context".
type Payload map[string]any

// Service publishes events.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds the configured notifiers. Without an ntfy topic and with
// desktop notifications off, a no-op service is returned.
func NewService(cfg *config.Config) Service {
	var services multiService
	if topic := strings.TrimSpace(cfg.Notifications.NtfyTopic); topic != "" {
		timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		services = append(services, &ntfyService{
			endpoint: topic,
			client:   &http.Client{Timeout: timeout},
		})
	}
	if cfg.Notifications.Desktop {
		services = append(services, desktopService{notify: func(title, message string) error {
			return beeep.Notify(title, message, "")
		}})
	}
	switch len(services) {
	case 0:
		return noopService{}
	case 1:
		return services[0]
	default:
		return services
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

// render turns an event into a message, or ok=false when the event is not
// worth a notification.
func render(event Event, p Payload) (payload, bool) {
	switch event {
	case EventRunStarted:
		count := intValue(p, "count")
		if count <= 1 {
			return payload{}, false
		}
		return payload{
			title:   "spotrip - Rip Started",
			message: fmt.Sprintf("Ripping %d tracks from %s", count, textValue(p, "source", "the queue")),
			tags:    []string{"spotrip", "rip", "started"},
		}, true

	case EventRunCompleted:
		succeeded := intValue(p, "succeeded")
		failed := intValue(p, "failed")
		aborted := intValue(p, "aborted")
		duration := durationValue(p, "duration").Round(time.Second)
		if duration < 0 {
			duration = 0
		}
		data := payload{tags: []string{"spotrip", "rip", "completed"}}
		switch {
		case aborted > 0:
			data.title = "spotrip - Rip Aborted"
			data.message = fmt.Sprintf("🛑 Aborted after %d ripped, %d failed in %s", succeeded, failed, duration)
		case failed > 0:
			data.title = "spotrip - Rip Complete (with errors)"
			data.message = fmt.Sprintf("🎵 %d ripped, %d failed in %s", succeeded, failed, duration)
		default:
			data.title = "spotrip - Rip Complete"
			data.message = fmt.Sprintf("🎵 %d tracks ripped in %s", succeeded, duration)
		}
		return data, true

	case EventTrackFailed:
		return payload{
			title:   "spotrip - Track Failed",
			message: fmt.Sprintf("Could not rip %s: %s", textValue(p, "track", "track"), textValue(p, "error", "unknown error")),
			tags:    []string{"spotrip", "track", "failed"},
		}, true

	case EventError:
		var b strings.Builder
		b.WriteString("❌ Error")
		if label := textValue(p, "context", ""); label != "" {
			b.WriteString(" with ")
			b.WriteString(label)
		}
		b.WriteString(": ")
		b.WriteString(textValue(p, "error", "unknown"))
		return payload{
			title:    "spotrip - Error",
			message:  b.String(),
			tags:     []string{"spotrip", "error", "alert"},
			priority: "high",
		}, true

	case EventTest:
		return payload{
			title:    "spotrip - Test",
			message:  "🧪 Notification system test",
			tags:     []string{"spotrip", "test"},
			priority: "low",
		}, true
	}
	return payload{}, false
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, p Payload) error {
	data, ok := render(event, p)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
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

// desktopService shows events as native desktop notifications.
type desktopService struct {
	notify func(title, message string) error
}

func (d desktopService) Publish(_ context.Context, event Event, p Payload) error {
	data, ok := render(event, p)
	if !ok || event == EventTrackFailed {
		return nil
	}
	if err := d.notify(data.title, data.message); err != nil {
		return fmt.Errorf("desktop notification: %w", err)
	}
	return nil
}

type multiService []Service

func (m multiService) Publish(ctx context.Context, event Event, p Payload) error {
	var errs []error
	for _, svc := range m {
		if err := svc.Publish(ctx, event, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }

func textValue(p Payload, key, fallback string) string {
	if v, ok := p[key]; ok && v != nil {
		var s string
		switch value := v.(type) {
		case string:
			s = value
		case error:
			s = value.Error()
		default:
			s = fmt.Sprint(value)
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return fallback
}

func intValue(p Payload, key string) int {
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	}
	return 0
}

func durationValue(p Payload, key string) time.Duration {
	if v, ok := p[key].(time.Duration); ok {
		return v
	}
	return 0
}
