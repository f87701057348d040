package payment

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

const defaultAPIURL = "https://api.yookassa.ru/v3"

// Client talks to the YooKassa REST API with shop credentials.
type Client struct {
	ShopID     string
	SecretKey  string
	APIURL     string
	HTTPClient *http.Client
}

func NewClient(shopID, secretKey string) *Client {
	return &Client{
		ShopID:     shopID,
		SecretKey:  secretKey,
		APIURL:     defaultAPIURL,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// CreatePayment opens a redirect payment that is captured automatically.
func (c *Client) CreatePayment(ctx context.Context, amount, currency, description, returnURL string, metadata map[string]string) (*PaymentResponse, error) {
	body := CreatePaymentRequest{
		Amount:  Amount{Value: amount, Currency: currency},
		Capture: true,
		Confirmation: Confirmation{
			Type:      confirmationRedirect,
			ReturnURL: returnURL,
		},
		Description: description,
		Metadata:    metadata,
	}

	var out PaymentResponse
	if err := c.post(ctx, "/payments", body, &out); err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}
	return &out, nil
}

// post sends body with a fresh Idempotence-Key and decodes the reply into out.
func (c *Client) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.APIURL+path, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Idempotence-Key", uuid.NewString())
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.ShopID, c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(respBody, apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = "unexpected_response"
			apiErr.Description = string(respBody)
		}
		return apiErr
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}
