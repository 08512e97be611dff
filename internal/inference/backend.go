package inference

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

	"github.com/karnali/wildguard-go/internal/errors"
)

// BackendClient talks to the detection backend over HTTP: a multipart POST
// of the image to /predict, answered with a JSON detection list.
type BackendClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBackendClient creates a client for the backend at baseURL.
func NewBackendClient(baseURL string, timeout time.Duration) *BackendClient {
	return &BackendClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// predictResponse is the backend's reply shape.
type predictResponse struct {
	Detections []Detection `json:"detections"`
}

// Detect implements Detector against the HTTP backend.
func (c *BackendClient) Detect(ctx context.Context, payload []byte) ([]Detection, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	header.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create form part: %w", err)
	}
	if _, err := part.Write(payload); err != nil {
		return nil, fmt.Errorf("write image data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predict", &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryInference).
			Context("backend_url", c.baseURL).
			Build()
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, errors.Newf("detection backend returned %s: %s", resp.Status, body).
			Component("inference").
			Category(errors.CategoryInference).
			Context("status_code", resp.StatusCode).
			Build()
	}

	var decoded predictResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, errors.New(err).
			Component("inference").
			Category(errors.CategoryInference).
			Context("backend_url", c.baseURL).
			Build()
	}
	return decoded.Detections, nil
}
