package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gen2brain/beeep"
)

// DesktopSink delivers a native OS notification via beeep.
type DesktopSink struct {
	AppName string
	IconPath string
}

func (s DesktopSink) Send(ev Event) error {
	title := fmt.Sprintf("%s — %s", s.appName(), ev.SessionName)
	body := ev.Message
	if ev.MatchedText != "" {
		body = ev.MatchedText
	}
	return beeep.Notify(title, body, s.IconPath)
}

func (s DesktopSink) appName() string {
	if s.AppName == "" {
		return "tame"
	}
	return s.AppName
}

// AudioSink plays beeep's default beep when SoundPath is empty. When
// SoundPath is set it calls beeep.Alert with SoundPath as the icon
// argument; the file at SoundPath is not played as audio.
type AudioSink struct {
	SoundPath string
}

func (s AudioSink) Send(ev Event) error {
	if s.SoundPath == "" {
		return beeep.Beep(beeep.DefaultFreq, beeep.DefaultDuration)
	}
	return beeep.Alert("", "", s.SoundPath)
}

// WebhookSink POSTs a JSON body to a configured URL. The same type
// backs both the Slack sink (payload shaped for Slack's incoming
// webhook format) and a generic webhook sink.
type WebhookSink struct {
	URL     string
	Timeout time.Duration
	Slack   bool
}

type slackPayload struct {
	Text string `json:"text"`
}

type webhookPayload struct {
	EventType   string    `json:"event_type"`
	SessionID   string    `json:"session_id"`
	SessionName string    `json:"session_name"`
	Message     string    `json:"message"`
	MatchedText string    `json:"matched_text,omitempty"`
	Time        time.Time `json:"time"`
}

func (s WebhookSink) Send(ev Event) error {
	if s.URL == "" {
		return fmt.Errorf("notify: webhook sink has no URL configured")
	}

	var body []byte
	var err error
	if s.Slack {
		body, err = json.Marshal(slackPayload{Text: fmt.Sprintf("[%s] %s: %s", ev.Type, ev.SessionName, ev.Message)})
	} else {
		body, err = json.Marshal(webhookPayload{
			EventType:   string(ev.Type),
			SessionID:   ev.SessionID.String(),
			SessionName: ev.SessionName,
			Message:     ev.Message,
			MatchedText: ev.MatchedText,
			Time:        ev.Time,
		})
	}
	if err != nil {
		return fmt.Errorf("notify: encode webhook payload: %w", err)
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook post: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
