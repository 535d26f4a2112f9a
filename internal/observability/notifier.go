package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Notifier delivers alerts to an external channel.
type Notifier interface {
	Notify(ctx context.Context, alerts []Alert) error
}

type slackNotifier struct {
	webhookURL string
	client     *http.Client
}

// NewSlackNotifier creates a Notifier posting to a Slack incoming webhook.
func NewSlackNotifier(webhookURL string) Notifier {
	return &slackNotifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Notify posts alerts as one message grouped by track. No request is made
// for an empty slice.
func (s *slackNotifier) Notify(ctx context.Context, alerts []Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	body, err := json.Marshal(buildSlackMessage(alerts))
	if err != nil {
		return fmt.Errorf("marshaling slack message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting %d alert(s) to slack: %w", len(alerts), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack webhook returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// buildSlackMessage renders one section per track, in the order tracks first
// appear in alerts, followed by a severity tally stamped with the latest
// trigger time.
func buildSlackMessage(alerts []Alert) slackMessage {
	var order []string
	byTrack := make(map[string][]Alert)
	counts := make(map[AlertSeverity]int)
	var latest time.Time
	for _, a := range alerts {
		if a.TriggeredAt.After(latest) {
			latest = a.TriggeredAt
		}
		if _, ok := byTrack[a.TrackID]; !ok {
			order = append(order, a.TrackID)
		}
		byTrack[a.TrackID] = append(byTrack[a.TrackID], a)
		counts[a.Severity]++
	}

	summary := fmt.Sprintf("trackforge: %d alert(s) across %d track(s)", len(alerts), len(order))
	blocks := []slackBlock{{
		Type: "header",
		Text: &slackText{Type: "plain_text", Text: summary},
	}}

	for i, trackID := range order {
		if i > 0 {
			blocks = append(blocks, slackBlock{Type: "divider"})
		}
		lines := []string{fmt.Sprintf("*Track* `%s`", trackID)}
		for _, a := range byTrack[trackID] {
			lines = append(lines, alertLine(a))
		}
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{Type: "mrkdwn", Text: strings.Join(lines, "\n")},
		})
	}

	tally := fmt.Sprintf("high %d | medium %d | low %d | triggered %s",
		counts[SeverityHigh], counts[SeverityMedium], counts[SeverityLow],
		latest.UTC().Format("2006-01-02 15:04 UTC"))
	blocks = append(blocks, slackBlock{
		Type:     "context",
		Elements: []slackText{{Type: "mrkdwn", Text: tally}},
	})
	return slackMessage{Text: summary, Blocks: blocks}
}

func alertLine(a Alert) string {
	subject := "track-wide"
	if a.TaskID != "" {
		subject = "task `" + a.TaskID + "`"
	}
	return fmt.Sprintf("%s *%s* %s (%s): %s",
		severityEmoji(a.Severity),
		strings.ToUpper(string(a.Severity)),
		subject,
		strings.ReplaceAll(a.Condition, "_", " "),
		a.Message,
	)
}

func severityEmoji(severity AlertSeverity) string {
	switch severity {
	case SeverityHigh:
		return ":red_circle:"
	case SeverityMedium:
		return ":large_yellow_circle:"
	case SeverityLow:
		return ":large_blue_circle:"
	default:
		return ":grey_question:"
	}
}
