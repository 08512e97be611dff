package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/karnali/wildguard-go/internal/errors"
)

// VoiceSender starts an outbound voice campaign carrying the alert message.
type VoiceSender interface {
	SendVoiceAlert(ctx context.Context, message string) error
}

// VoiceClient drives the voice campaign API: one POST begins the configured
// campaign, which calls its enrolled recipients with the message.
type VoiceClient struct {
	baseURL    string
	campaignID string
	token      string
	httpClient *http.Client
}

// NewVoiceClient creates a client for the campaign API at baseURL.
func NewVoiceClient(baseURL, campaignID, token string, timeout time.Duration) *VoiceClient {
	return &VoiceClient{
		baseURL:    baseURL,
		campaignID: campaignID,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SendVoiceAlert begins the campaign with the given voice message.
func (c *VoiceClient) SendVoiceAlert(ctx context.Context, message string) error {
	body, err := json.Marshal(map[string]string{"message": message})
	if err != nil {
		return fmt.Errorf("marshal voice payload: %w", err)
	}

	url := fmt.Sprintf("%s/api/system/campaigns/%s/begin/", c.baseURL, c.campaignID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create voice request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.New(err).
			Component("triage").
			Category(errors.CategoryAlertDispatch).
			Context("channel", "voice").
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return errors.Newf("voice campaign API returned %s: %s", resp.Status, respBody).
			Component("triage").
			Category(errors.CategoryAlertDispatch).
			Context("channel", "voice").
			Context("status_code", resp.StatusCode).
			Build()
	}
	return nil
}
