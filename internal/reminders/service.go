package reminders

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"psorcast/internal/config"
	"psorcast/internal/logging"
	"psorcast/internal/schedule"
	"psorcast/internal/services"
	"psorcast/internal/timeline"
)

const userAgent = "Psorcast-Go/0.1.0"

// Service is the reminder surface used by the CLI and the daemon.
type Service interface {
	NotifyLastCall(ctx context.Context, summary schedule.WeekSummary) error
	NotifyVideoReady(ctx context.Context, event timeline.Event) error
	TestNotification(ctx context.Context) error
}

// NewService returns an ntfy-backed Service, or a noop when no topic is
// configured.
func NewService(cfg *config.Config, logger *slog.Logger) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:   topic,
		client:     &http.Client{Timeout: timeout},
		lastCall:   cfg.Notifications.LastCall,
		videoReady: cfg.Notifications.VideoReady,
		logger:     logging.NewComponentLogger(logger, "reminders"),
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	client     *http.Client
	lastCall   bool
	videoReady bool
	logger     *slog.Logger
}

// LastCallMessage renders the body of a last-call reminder.
func LastCallMessage(summary schedule.WeekSummary) string {
	remaining := summary.Remaining()
	noun := "activities"
	if summary.Scheduled == 1 {
		noun = "activity"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d %s remaining this week", remaining, summary.Scheduled, noun)
	var names []string
	for _, status := range summary.Activities {
		if status.Scheduled && status.Due && !status.Complete {
			names = append(names, status.Title)
		}
	}
	if len(names) > 0 {
		b.WriteString("\n")
		b.WriteString(strings.Join(names, ", "))
	}
	return b.String()
}

func (n *ntfyService) NotifyLastCall(ctx context.Context, summary schedule.WeekSummary) error {
	if !n.lastCall {
		n.logger.Debug("last call reminder disabled")
		return nil
	}
	if summary.AllComplete {
		n.logger.Info("last call reminder suppressed",
			logging.Int("week", summary.Week),
			logging.String("reason", "all activities complete"),
		)
		return nil
	}
	if summary.Scheduled == 0 {
		n.logger.Info("last call reminder suppressed",
			logging.Int("week", summary.Week),
			logging.String("reason", "nothing scheduled"),
		)
		return nil
	}
	data := payload{
		title:    fmt.Sprintf("Psorcast - Week %d", summary.Week),
		message:  LastCallMessage(summary),
		tags:     []string{"psorcast", "reminder", "last-call"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyVideoReady(ctx context.Context, event timeline.Event) error {
	if !n.videoReady || event.Kind != timeline.EventVideoCreated {
		return nil
	}
	title := "Treatment timeline"
	if event.Activity.Known() {
		title = event.Activity.Title()
	}
	message := fmt.Sprintf("🎞️ %s video ready", title)
	if name := filepath.Base(strings.TrimSpace(event.OutputPath)); name != "" && name != "." {
		message = fmt.Sprintf("%s\nFile: %s", message, name)
	}
	data := payload{
		title:   "Psorcast - Video Ready",
		message: message,
		tags:    []string{"psorcast", "video", "ready"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Psorcast - Test",
		message:  "🧪 Notification system test",
		tags:     []string{"psorcast", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "reminders", "build request", n.endpoint, err)
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
		return services.Wrap(services.ErrTransient, "reminders", "send", "ntfy request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return services.Wrap(services.ErrTransient, "reminders", "send",
			fmt.Sprintf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), nil)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	n.logger.Debug("notification sent", logging.String("title", data.title))
	return nil
}

type noopService struct{}

func (noopService) NotifyLastCall(context.Context, schedule.WeekSummary) error { return nil }
func (noopService) NotifyVideoReady(context.Context, timeline.Event) error     { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
