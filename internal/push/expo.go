package push

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultExpoURL is Expo's push send endpoint.
const DefaultExpoURL = "https://exp.host/--/api/v2/push/send"

// ExpoConfig configures the Expo HTTP client.
type ExpoConfig struct {
	URL         string
	AccessToken string        // optional, enables Expo's enhanced push security
	Timeout     time.Duration // per request
}

// ExpoClient is a Gateway backed by Expo's push API.
type ExpoClient struct {
	url         string
	accessToken string
	client      *http.Client
	logger      *zap.Logger
}

type expoResponse struct {
	Data   []Ticket       `json:"data"`
	Errors []expoAPIError `json:"errors,omitempty"`
}

type expoAPIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewExpoClient creates a client. A zero timeout defaults to 30 seconds.
func NewExpoClient(cfg ExpoConfig, logger *zap.Logger) *ExpoClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	url := cfg.URL
	if url == "" {
		url = DefaultExpoURL
	}

	return &ExpoClient{
		url:         url,
		accessToken: cfg.AccessToken,
		client: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// Send posts one batch. Transport errors and 5xx responses wrap ErrTransport;
// any other status is a *GatewayError when the batch fails. A 2xx whose body
// cannot be read is never a transport error: the gateway may already have
// accepted the messages.
func (c *ExpoClient) Send(ctx context.Context, messages []Message) ([]Ticket, error) {
	body, err := json.Marshal(messages)
	if err != nil {
		return nil, fmt.Errorf("marshal push batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create push request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip, deflate")
	if c.accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.accessToken)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	reader, err := decodeBody(resp)
	if err != nil {
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w: status %d: %v", ErrTransport, resp.StatusCode, err)
		}
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: "undecodable response: " + err.Error()}
	}
	defer reader.Close()

	if resp.StatusCode >= 500 {
		preview, _ := io.ReadAll(io.LimitReader(reader, 1024))
		return nil, fmt.Errorf("%w: status %d: %s", ErrTransport, resp.StatusCode, string(preview))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		preview, _ := io.ReadAll(io.LimitReader(reader, 1024))
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: string(preview)}
	}

	var parsed expoResponse
	if err := json.NewDecoder(reader).Decode(&parsed); err != nil {
		return nil, &GatewayError{StatusCode: resp.StatusCode, Body: "undecodable response: " + err.Error()}
	}

	for _, apiErr := range parsed.Errors {
		c.logger.Warn("expo returned request level error",
			zap.String("code", apiErr.Code),
			zap.String("message", apiErr.Message),
		)
	}

	return parsed.Data, nil
}

// decodeBody undoes the content encoding we asked for. Setting
// Accept-Encoding by hand turns off net/http's transparent gzip.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		return gzip.NewReader(resp.Body)
	case "deflate":
		return zlib.NewReader(resp.Body)
	default:
		return io.NopCloser(resp.Body), nil
	}
}
