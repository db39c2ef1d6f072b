// Package abuse wraps the external bot-challenge verification service.
// Verification failures map to permission errors at the API layer and run
// before any slot state is touched.
package abuse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

type Verifier interface {
	Verify(ctx context.Context, token, expectedAction string) (bool, error)
}

// HTTPVerifier posts the challenge token to a Turnstile-style verification
// endpoint and checks success plus the expected action.
type HTTPVerifier struct {
	endpoint string
	secret   string
	client   *http.Client
}

func NewHTTPVerifier(endpoint, secret string) *HTTPVerifier {
	return &HTTPVerifier{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

type verifyResponse struct {
	Success bool   `json:"success"`
	Action  string `json:"action"`
}

func (v *HTTPVerifier) Verify(ctx context.Context, token, expectedAction string) (bool, error) {
	if token == "" {
		return false, nil
	}

	form := url.Values{}
	form.Set("secret", v.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("challenge verification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("challenge verification returned %d", resp.StatusCode)
	}

	var body verifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("decode verification response: %w", err)
	}

	if !body.Success {
		return false, nil
	}
	if body.Action != "" && expectedAction != "" && body.Action != expectedAction {
		return false, nil
	}
	return true, nil
}

// AllowAll accepts every token. Used when no verification endpoint is
// configured (dev).
type AllowAll struct{}

func (AllowAll) Verify(ctx context.Context, token, expectedAction string) (bool, error) {
	return true, nil
}
