package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"spotrip/internal/config"
	"spotrip/internal/notifications"
)

func TestNewServiceReturnsNoopWhenUnconfigured(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	cfg.Notifications.Desktop = false
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventRunCompleted, notifications.Payload{"succeeded": 3}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:          "run started",
			event:         notifications.EventRunStarted,
			payload:       notifications.Payload{"count": 12, "source": "Discover Weekly"},
			expectTitle:   "spotrip - Rip Started",
			expectMessage: "Ripping 12 tracks from Discover Weekly",
			expectTags:    "spotrip,rip,started",
		},
		{
			name:          "run completed",
			event:         notifications.EventRunCompleted,
			payload:       notifications.Payload{"succeeded": 10, "duration": 95 * time.Second},
			expectTitle:   "spotrip - Rip Complete",
			expectMessage: "🎵 10 tracks ripped in 1m35s",
			expectTags:    "spotrip,rip,completed",
		},
		{
			name:          "run completed with failures",
			event:         notifications.EventRunCompleted,
			payload:       notifications.Payload{"succeeded": 2, "failed": 1, "duration": 3 * time.Second},
			expectTitle:   "spotrip - Rip Complete (with errors)",
			expectMessage: "🎵 2 ripped, 1 failed in 3s",
			expectTags:    "spotrip,rip,completed",
		},
		{
			name:          "track failed",
			event:         notifications.EventTrackFailed,
			payload:       notifications.Payload{"track": "Artist - Song", "error": errors.New("track unavailable")},
			expectTitle:   "spotrip - Track Failed",
			expectMessage: "Could not rip Artist - Song: track unavailable",
			expectTags:    "spotrip,track,failed",
		},
		{
			name:           "error",
			event:          notifications.EventError,
			payload:        notifications.Payload{"context": "login", "error": "authentication failed"},
			expectTitle:    "spotrip - Error",
			expectMessage:  "❌ Error with login: authentication failed",
			expectTags:     "spotrip,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceSkipsSingleTrackStart(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventRunStarted, notifications.Payload{"count": 1}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := svc.Publish(context.Background(), notifications.Event("unknown"), nil); err != nil {
		t.Fatalf("expected unknown events to be ignored, got %v", err)
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic is closed", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}

func TestDesktopServiceSkipsPerTrackFailures(t *testing.T) {
	var titles []string
	svc := notifications.NewDesktopService(func(title, message string) error {
		titles = append(titles, title)
		return nil
	})
	ctx := context.Background()
	if err := svc.Publish(ctx, notifications.EventTrackFailed, notifications.Payload{"track": "x"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := svc.Publish(ctx, notifications.EventRunCompleted, notifications.Payload{"succeeded": 1}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(titles) != 1 || titles[0] != "spotrip - Rip Complete" {
		t.Fatalf("unexpected desktop notifications %v", titles)
	}

	failing := notifications.NewDesktopService(func(string, string) error { return errors.New("no dbus") })
	if err := failing.Publish(ctx, notifications.EventTest, nil); err == nil {
		t.Fatal("expected desktop error to surface")
	}
}
