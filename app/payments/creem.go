package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"voxa/m/v2/app/config"
	"voxa/m/v2/app/models"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const TIMEOUT = 60 * time.Second

// Creem talks to the Creem REST API.
type Creem struct {
	apiKey   string
	endpoint string
	client   *http.Client
}

func NewCreem(cfg *config.Config) *Creem {
	return &Creem{
		apiKey:   cfg.CreemAPIKey,
		endpoint: strings.TrimRight(cfg.CreemAPIEndpoint, "/"),
		client: &http.Client{
			Timeout: TIMEOUT,
		},
	}
}

// WithHTTPClient swaps the transport, mostly for tests.
func (c *Creem) WithHTTPClient(client *http.Client) *Creem {
	c.client = client
	return c
}

func (c *Creem) Name() string {
	return config.BillingProviderCreem
}

func (c *Creem) CreateCheckout(ctx context.Context, request CheckoutRequest) (*models.Checkout, error) {
	body := map[string]any{
		"product_id": request.Product.ID,
		"request_id": uuid.New().String(),
		"metadata":   request.Metadata(),
	}
	if request.Email != "" {
		body["customer"] = map[string]string{"email": request.Email}
	}
	if request.SuccessURL != "" {
		body["success_url"] = request.SuccessURL
	}

	var checkout models.Checkout
	if err := c.do(ctx, http.MethodPost, "/v1/checkouts", body, &checkout); err != nil {
		return nil, err
	}
	return &checkout, nil
}

// CancelSubscription schedules the cancellation at the end of the paid period.
func (c *Creem) CancelSubscription(ctx context.Context, subscriptionID string) (*models.ProviderSubscription, error) {
	body := map[string]any{"cancel_at_period_end": true}
	var subscription models.ProviderSubscription
	path := "/v1/subscriptions/" + url.PathEscape(subscriptionID) + "/cancel"
	if err := c.do(ctx, http.MethodPost, path, body, &subscription); err != nil {
		return nil, err
	}
	if subscription.ID == "" {
		subscription.ID = subscriptionID
	}
	subscription.CancelAtPeriodEnd = true
	return &subscription, nil
}

func (c *Creem) do(ctx context.Context, method, path string, body any, out any) error {
	requestBodyJSON, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, bytes.NewBuffer(requestBodyJSON))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	timeNow := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	config.CONFIG.DataDogClient.Timing("creem.latency", time.Since(timeNow), []string{"path:" + strings.Split(path, "/")[2]}, 1)

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Errorf("Creem %s %s failed with %d: %s", method, path, resp.StatusCode, responseBody)
		return &ProviderError{Provider: c.Name(), StatusCode: resp.StatusCode, Message: creemErrorMessage(responseBody)}
	}
	if out == nil || len(responseBody) == 0 {
		return nil
	}
	return json.Unmarshal(responseBody, out)
}

// creemErrorMessage pulls the human readable part out of an error body.
func creemErrorMessage(body []byte) string {
	var parsed struct {
		Message any    `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch message := parsed.Message.(type) {
		case string:
			if message != "" {
				return message
			}
		case []any:
			parts := make([]string, 0, len(message))
			for _, part := range message {
				if s, ok := part.(string); ok {
					parts = append(parts, s)
				}
			}
			if len(parts) > 0 {
				return strings.Join(parts, "; ")
			}
		}
		if parsed.Error != "" {
			return parsed.Error
		}
	}
	if len(body) == 0 {
		return "empty response"
	}
	return string(body)
}

// VerifyCreemSignature checks the creem-signature header, a hex HMAC-SHA256
// of the raw body.
func VerifyCreemSignature(payload []byte, signature, secret string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}
