// Package pwned checks passwords against the Have I Been Pwned range API.
//
// Only the first five hex characters of the password's SHA-1 digest leave the
// process; the suffix match happens locally.
package pwned

import (
	"bufio"
	"context"
	"crypto/sha1" // #nosec G505 - required by the range API, not used for secrecy
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const DefaultBaseURL = "https://api.pwnedpasswords.com"

// Client queries the range API. Outbound calls are paced by a token bucket so
// a burst of signups cannot hammer the upstream service.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	limiter    *rate.Limiter
}

// NewClient returns a client allowing perSecond requests with the given burst.
func NewClient(baseURL string, perSecond float64, burst int) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: 5 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

// IsBreached reports whether password appears in the breach corpus.
func (c *Client) IsBreached(ctx context.Context, password string) (bool, error) {
	sum := sha1.Sum([]byte(password)) // #nosec G401
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	if err := c.limiter.Wait(ctx); err != nil {
		return false, fmt.Errorf("pwned: waiting for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/range/"+prefix, nil)
	if err != nil {
		return false, fmt.Errorf("pwned: failed to create request: %w", err)
	}
	req.Header.Set("Add-Padding", "true")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("pwned: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("pwned: unexpected status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		// Each line is SUFFIX:COUNT. Padding entries carry a count of 0.
		line := strings.TrimSpace(scanner.Text())
		hashSuffix, count, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(hashSuffix, suffix) {
			continue
		}
		return strings.TrimSpace(count) != "0", nil
	}
	if err := scanner.Err(); err != nil {
		return false, fmt.Errorf("pwned: reading response: %w", err)
	}

	return false, nil
}
