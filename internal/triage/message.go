package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"golang.org/x/time/rate"

	"github.com/karnali/wildguard-go/internal/errors"
)

// MessageSender delivers the rich template message with video evidence to
// one recipient at a time.
type MessageSender interface {
	UploadVideo(ctx context.Context, video []byte, filename string) (mediaID string, err error)
	SendTemplate(ctx context.Context, toPhone string, variables []string, mediaID string) error
}

// MessageClient talks to a graph-style messaging API: media is uploaded
// once, then referenced from per-recipient template messages. Outbound
// sends are paced by a rate limiter.
type MessageClient struct {
	baseURL       string
	phoneNumberID string
	token         string
	templateName  string
	languageCode  string
	httpClient    *http.Client
	limiter       *rate.Limiter
}

// NewMessageClient creates a client against the messaging API. ratePerMinute
// bounds outbound sends across all recipients.
func NewMessageClient(baseURL, phoneNumberID, token, templateName, languageCode string, timeout time.Duration, ratePerMinute int) *MessageClient {
	limit := rate.Inf
	if ratePerMinute > 0 {
		limit = rate.Limit(float64(ratePerMinute) / 60.0)
	}
	return &MessageClient{
		baseURL:       baseURL,
		phoneNumberID: phoneNumberID,
		token:         token,
		templateName:  templateName,
		languageCode:  languageCode,
		httpClient:    &http.Client{Timeout: timeout},
		limiter:       rate.NewLimiter(limit, 1),
	}
}

// uploadResponse is the media upload reply shape.
type uploadResponse struct {
	ID string `json:"id"`
}

// UploadVideo uploads the evidence clip and returns the media id referenced
// by subsequent template sends.
func (c *MessageClient) UploadVideo(ctx context.Context, video []byte, filename string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	if err := writer.WriteField("messaging_product", "whatsapp"); err != nil {
		return "", fmt.Errorf("write form field: %w", err)
	}
	if err := writer.WriteField("type", "video"); err != nil {
		return "", fmt.Errorf("write form field: %w", err)
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	header.Set("Content-Type", "video/mp4")
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(video); err != nil {
		return "", fmt.Errorf("write video data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}

	url := fmt.Sprintf("%s/%s/media", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.dispatchError(err, "media_upload", 0)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", c.dispatchError(fmt.Errorf("media upload returned %s: %s", resp.Status, body),
			"media_upload", resp.StatusCode)
	}

	var decoded uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", c.dispatchError(err, "media_upload", resp.StatusCode)
	}
	if decoded.ID == "" {
		return "", c.dispatchError(errors.NewStd("media upload returned no id"), "media_upload", resp.StatusCode)
	}
	return decoded.ID, nil
}

// SendTemplate sends the species alert template to one phone number, with
// the uploaded video as the header when mediaID is set.
func (c *MessageClient) SendTemplate(ctx context.Context, toPhone string, variables []string, mediaID string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var components []map[string]any
	if mediaID != "" {
		components = append(components, map[string]any{
			"type": "header",
			"parameters": []map[string]any{
				{"type": "video", "video": map[string]string{"id": mediaID}},
			},
		})
	}
	if len(variables) > 0 {
		parameters := make([]map[string]any, 0, len(variables))
		for _, variable := range variables {
			parameters = append(parameters, map[string]any{"type": "text", "text": variable})
		}
		components = append(components, map[string]any{
			"type":       "body",
			"parameters": parameters,
		})
	}

	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                toPhone,
		"type":              "template",
		"template": map[string]any{
			"name":       c.templateName,
			"language":   map[string]string{"code": c.languageCode},
			"components": components,
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal template payload: %w", err)
	}

	url := fmt.Sprintf("%s/%s/messages", c.baseURL, c.phoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create message request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.dispatchError(err, "template_message", 0)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return c.dispatchError(fmt.Errorf("message API returned %s: %s", resp.Status, respBody),
			"template_message", resp.StatusCode)
	}
	return nil
}

func (c *MessageClient) dispatchError(err error, operation string, statusCode int) error {
	builder := errors.New(err).
		Component("triage").
		Category(errors.CategoryAlertDispatch).
		Context("channel", "message").
		Context("operation", operation)
	if statusCode != 0 {
		builder = builder.Context("status_code", statusCode)
	}
	return builder.Build()
}
