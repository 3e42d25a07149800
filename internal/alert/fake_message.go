package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// FakeMessageAlerter formats the alert like a chat message. With a webhook
// URL configured it posts the message there; without one it prints the
// block to the log, which is enough for local runs.
type FakeMessageAlerter struct {
	webhookURL string
	httpClient *http.Client
	log        *zap.Logger
}

func NewFakeMessageAlerter(webhookURL string, logger *zap.Logger) *FakeMessageAlerter {
	return &FakeMessageAlerter{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		log:        logger,
	}
}

func (a *FakeMessageAlerter) Name() string { return "fake_message" }

func (a *FakeMessageAlerter) SendAlert(ctx context.Context, subject, message string, details map[string]any) error {
	block := fmt.Sprintf(
		"----- ALERT -----\nSubject: %s\n%s\nDetails:\n%s-----------------",
		subject, message, formatDetails(details),
	)

	if a.webhookURL == "" {
		a.log.Info("fake message alert\n" + block)
		return nil
	}

	body, err := json.Marshal(map[string]string{"text": block})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert webhook returned %d", resp.StatusCode)
	}
	return nil
}
