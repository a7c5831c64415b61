// package to connect to ElevenLabs API
package elevenlabs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"voxa/m/v2/app/config"

	log "github.com/sirupsen/logrus"
)

const (
	TIMEOUT = 60 * time.Second

	// MaxInputCharacters is the longest text a single synthesis call accepts.
	MaxInputCharacters = 5000
)

// API is a type for ElevenLabs API
type API struct {
	authToken string
	endpoint  string
	streaming bool
	client    *http.Client
}

// APIError is a non-2xx answer from ElevenLabs.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("elevenlabs: unexpected status code: %d, response: %s", e.StatusCode, e.Message)
}

// NewAPI creates new ElevenLabs API
func NewAPI(cfg *config.Config) *API {
	return &API{
		authToken: cfg.ElevenLabsAPIKey,
		endpoint:  strings.TrimRight(cfg.ElevenLabsEndpoint, "/"),
		streaming: cfg.ElevenLabsStreaming,
		client: &http.Client{
			Timeout: TIMEOUT,
		},
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func (a *API) WithHTTPClient(client *http.Client) *API {
	a.client = client
	return a
}

// IsAvailable checks whether ElevenLabs API is available
func (a *API) IsAvailable(ctx context.Context) bool {
	if a.authToken == "" {
		log.Errorf("PING: ElevenLabs API key is not set")
		return false
	}

	req, err := a.newRequest(ctx, http.MethodGet, "/v1/models", nil)
	if err != nil {
		log.Errorf("PING: ElevenLabs request error: %v", err)
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		log.Errorf("PING: ElevenLabs API error: %v", err)
		return false
	}
	defer resp.Body.Close()
	if err := checkResponse(resp); err != nil {
		log.Errorf("PING: ElevenLabs API error: %v", err)
		return false
	}
	return true
}

func (a *API) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, a.endpoint+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("xi-api-key", a.authToken)
	return req, nil
}

func checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(responseBody)}
}
