package classifier

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/example/quality-check/internal/logging"
)

const errorBodyLimit = 2048

// HTTPStatusError is returned when the endpoint answers with a non-2xx code.
type HTTPStatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPStatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("classifier status: %s", e.Status)
	}
	return fmt.Sprintf("classifier status: %s: %s", e.Status, e.Body)
}

// HTTPClient posts raw image bytes to an invocation URL.
type HTTPClient struct {
	endpoint    string
	contentType string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewHTTPClient builds a client for endpoint. A nil httpClient means
// http.DefaultClient.
func NewHTTPClient(endpoint, contentType string, httpClient *http.Client, logger *zap.Logger) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		endpoint:    endpoint,
		contentType: contentType,
		httpClient:  httpClient,
		logger:      logger.Named("classifier_http"),
	}
}

func (c *HTTPClient) Invoke(ctx context.Context, image []byte) (string, error) {
	text, err := c.invoke(ctx, image)
	if err != nil {
		wrapped := logging.NewOperationError("classifier.invoke", "", err)
		c.logger.Error("classification request failed", zap.Error(wrapped), zap.String("endpoint", c.endpoint))
		return "", wrapped
	}
	return text, nil
}

func (c *HTTPClient) invoke(ctx context.Context, image []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(image))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", c.contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
		return "", &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(body)),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(body), nil
}
