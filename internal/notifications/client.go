package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"playcount_snapshot/internal/batch"
	"playcount_snapshot/internal/retry"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

type Client struct {
	http    *resty.Client
	baseURL string
	topic   string
	enabled bool
	policy  retry.Policy
}

type NotificationError struct {
	Type       string
	StatusCode int
	Underlying error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification failed [%s]: %v", e.Type, e.Underlying)
}

func (e *NotificationError) Unwrap() error {
	return e.Underlying
}

func (e *NotificationError) IsRetryable() bool {
	switch e.Type {
	case "network", "server", "rate_limit":
		return true
	default:
		return false
	}
}

func isRetryable(err error) bool {
	var notifErr *NotificationError
	if errors.As(err, &notifErr) {
		return notifErr.IsRetryable()
	}
	return false
}

func NewClient(baseURL, topic string, enabled bool, policy retry.Policy) *Client {
	policy.Retryable = isRetryable
	return &Client{
		http:    resty.New().SetTimeout(10 * time.Second),
		baseURL: strings.TrimSuffix(baseURL, "/"),
		topic:   topic,
		enabled: enabled,
		policy:  policy,
	}
}

// Send posts message to the topic. It is a no-op when notifications are off.
func (c *Client) Send(ctx context.Context, title, priority, message string) error {
	if !c.enabled {
		log.Debug().Msg("Notifications disabled, skipping")
		return nil
	}

	return retry.Run(ctx, c.policy, "send notification", func(ctx context.Context) error {
		return c.sendOnce(ctx, title, priority, message)
	})
}

func (c *Client) sendOnce(ctx context.Context, title, priority, message string) error {
	url := fmt.Sprintf("%s/%s", c.baseURL, c.topic)
	req := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "text/plain").
		SetBody(message)
	if title != "" {
		req.SetHeader("Title", title)
	}
	if priority != "" {
		req.SetHeader("Priority", priority)
	}

	resp, err := req.Post(url)
	if err != nil {
		return &NotificationError{Type: "network", Underlying: err}
	}
	if resp.StatusCode() >= 400 {
		return &NotificationError{
			Type:       categorizeHTTPError(resp.StatusCode()),
			StatusCode: resp.StatusCode(),
			Underlying: fmt.Errorf("HTTP %d: %s", resp.StatusCode(), resp.Status()),
		}
	}

	log.Debug().Int("status_code", resp.StatusCode()).Msg("Notification sent successfully")
	return nil
}

// NotifyRun sends the outcome of one snapshot run. Failures are logged only;
// they never change the outcome of the run.
func (c *Client) NotifyRun(ctx context.Context, sheet string, column string, summary batch.Summary, runErr error) {
	if !c.enabled {
		return
	}

	title, priority := "Play count snapshot complete", "default"
	if runErr != nil {
		title, priority = "Play count snapshot failed", "high"
	}

	if err := c.Send(ctx, title, priority, FormatRunMessage(sheet, column, summary, runErr)); err != nil {
		log.Warn().Err(err).Msg("Failed to send run notification")
	}
}

func FormatRunMessage(sheet, column string, summary batch.Summary, runErr error) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Sheet %s, column %s\n", sheet, column)
	fmt.Fprintf(&sb, "%d rows in %d chunks, %d fetched, %d skipped, %d zero\n",
		summary.Rows, summary.Chunks, summary.Fetched, summary.Skipped, summary.Zeroed)
	fmt.Fprintf(&sb, "Total plays: %d\n", summary.Total)
	if summary.Overwritten > 0 {
		fmt.Fprintf(&sb, "Overwrote %d existing values\n", summary.Overwritten)
	}
	if runErr != nil {
		fmt.Fprintf(&sb, "Error: %v\n", runErr)
	}
	fmt.Fprintf(&sb, "Took %s", summary.Elapsed.Round(time.Second))

	return sb.String()
}

func categorizeHTTPError(statusCode int) string {
	switch {
	case statusCode == 401 || statusCode == 403:
		return "auth"
	case statusCode == 429:
		return "rate_limit"
	case statusCode >= 400 && statusCode < 500:
		return "client"
	case statusCode >= 500:
		return "server"
	default:
		return "unknown"
	}
}
