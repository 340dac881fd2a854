package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// tokenEarlyRefresh renews cached OAuth tokens this long before expiry.
const tokenEarlyRefresh = 300 * time.Second

// TokenCache holds a Baidu OAuth access token across requests so the
// token endpoint is only hit when the cached token is near expiry.
type TokenCache struct {
	mu     sync.Mutex
	token  string
	expiry time.Time
	now    func() time.Time
}

func NewTokenCache() *TokenCache {
	return &TokenCache{now: time.Now}
}

// Get returns a valid access token, fetching a fresh one when needed.
func (tc *TokenCache) Get(ctx context.Context, client *http.Client, tokenEndpoint, apiKey, secretKey string) (string, error) {
	tc.mu.Lock()
	defer tc.mu.Unlock()

	if tc.token != "" && tc.now().Before(tc.expiry) {
		return tc.token, nil
	}

	q := url.Values{}
	q.Set("grant_type", "client_credentials")
	q.Set("client_id", apiKey)
	q.Set("client_secret", secretKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("baidu token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("baidu token request failed: status %d", resp.StatusCode)
	}
	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", fmt.Errorf("baidu token response missing access_token: %s", gjson.GetBytes(body, "error_description").String())
	}

	ttl := time.Duration(gjson.GetBytes(body, "expires_in").Int()) * time.Second
	if ttl <= tokenEarlyRefresh {
		ttl = tokenEarlyRefresh + time.Minute
	}
	tc.token = token
	tc.expiry = tc.now().Add(ttl - tokenEarlyRefresh)
	return tc.token, nil
}
