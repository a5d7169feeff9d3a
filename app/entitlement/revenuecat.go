package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jdiaz1993/quickcalories/app/models"
)

// RevenueCat polls the RevenueCat REST API for a subscriber's entitlement.
type RevenueCat struct {
	baseURL       string
	secretKey     string
	entitlementID string
	httpc         *http.Client
}

func NewRevenueCat(baseURL, secretKey, entitlementID string, timeout time.Duration) *RevenueCat {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if entitlementID == "" {
		entitlementID = "pro"
	}
	return &RevenueCat{
		baseURL:       strings.TrimRight(baseURL, "/"),
		secretKey:     secretKey,
		entitlementID: entitlementID,
		httpc:         &http.Client{Timeout: timeout},
	}
}

// RemoteError carries a non-success RevenueCat response.
type RemoteError struct {
	Status int
	Body   string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("revenuecat http %d: %s", e.Status, e.Body)
}

func (e *RemoteError) Unwrap() error { return ErrRemoteUnavailable }

// FetchEntitlement returns the configured entitlement for userID. A 404 means
// the subscriber does not exist and is reported as not present.
func (c *RevenueCat) FetchEntitlement(ctx context.Context, userID string) (RemoteEntitlement, error) {
	if c.secretKey == "" {
		return RemoteEntitlement{}, ErrNotConfigured
	}

	u := c.baseURL + "/subscribers/" + url.PathEscape(userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return RemoteEntitlement{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpc.Do(req)
	if err != nil {
		return RemoteEntitlement{}, fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return RemoteEntitlement{}, fmt.Errorf("%w: read body: %v", ErrRemoteUnavailable, err)
	}
	if res.StatusCode == http.StatusNotFound {
		return RemoteEntitlement{}, nil
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return RemoteEntitlement{}, &RemoteError{Status: res.StatusCode, Body: string(body)}
	}

	var payload models.RCResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return RemoteEntitlement{}, fmt.Errorf("%w: decode subscriber: %v", ErrRemoteUnavailable, err)
	}
	return c.extract(payload)
}

func (c *RevenueCat) extract(payload models.RCResponse) (RemoteEntitlement, error) {
	// some proxies wrap the subscriber in {"value": {...}}
	if payload.Subscriber == nil && payload.Value != nil {
		payload = *payload.Value
	}
	if payload.Subscriber == nil {
		return RemoteEntitlement{}, fmt.Errorf("%w: subscriber missing from response", ErrRemoteUnavailable)
	}

	ent, ok := payload.Subscriber.Entitlements[c.entitlementID]
	if !ok {
		return RemoteEntitlement{}, nil
	}
	out := RemoteEntitlement{Present: true}
	if ent.ExpiresDate != nil && *ent.ExpiresDate != "" {
		exp, err := time.Parse(time.RFC3339, *ent.ExpiresDate)
		if err != nil {
			return RemoteEntitlement{}, fmt.Errorf("%w: expires_date %q: %v", ErrRemoteUnavailable, *ent.ExpiresDate, err)
		}
		exp = exp.UTC()
		out.ExpiresAt = &exp
	}
	return out, nil
}
