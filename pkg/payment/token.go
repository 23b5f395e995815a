package payment

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// TokenFetcher obtains a fresh provider token and its lifetime.
type TokenFetcher func(ctx context.Context) (token string, lifetime time.Duration, err error)

const tokenFetchTimeout = 30 * time.Second

// TokenCache keeps one provider access token. Concurrent callers that find it
// expired share a single refresh, which is detached from any one caller's
// cancellation; each caller stops waiting when its own context ends.
type TokenCache struct {
	fetch        TokenFetcher
	now          func() time.Time
	fetchTimeout time.Duration
	group        singleflight.Group

	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewTokenCache(fetch TokenFetcher) *TokenCache {
	return &TokenCache{fetch: fetch, now: time.Now, fetchTimeout: tokenFetchTimeout}
}

func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	valid := c.token != "" && c.now().Before(c.expiry)
	token := c.token
	c.mu.Unlock()
	if valid {
		return token, nil
	}

	ch := c.group.DoChan("token", func() (interface{}, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.fetchTimeout)
		defer cancel()
		tok, lifetime, err := c.fetch(fetchCtx)
		if err != nil {
			return "", err
		}
		if lifetime <= 0 {
			lifetime = 5 * time.Minute
		}
		buffer := time.Minute
		if lifetime <= buffer {
			buffer = lifetime / 2
		}
		c.mu.Lock()
		c.token = tok
		c.expiry = c.now().Add(lifetime - buffer)
		c.mu.Unlock()
		return tok, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return "", r.Err
		}
		return r.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached token so the next call refreshes it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiry = time.Time{}
	c.mu.Unlock()
}

// Do runs fn with a valid token. A 401 from the provider invalidates the token
// and fn is retried once with a fresh one.
func (c *TokenCache) Do(ctx context.Context, fn func(token string) error) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}
	err = fn(token)
	if !isUnauthorized(err) {
		return err
	}
	c.Invalidate()
	token, err = c.Token(ctx)
	if err != nil {
		return err
	}
	return fn(token)
}

// clientCredentialsFetcher adapts an OAuth2 client-credentials config to a TokenFetcher.
func clientCredentialsFetcher(provider string, cfg *clientcredentials.Config, hc *http.Client) TokenFetcher {
	return func(ctx context.Context) (string, time.Duration, error) {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, hc)
		tok, err := cfg.Token(ctx)
		if err != nil {
			var re *oauth2.RetrieveError
			if errors.As(err, &re) && re.Response != nil {
				return "", 0, newAPIError(provider, re.Response.StatusCode, re.Body)
			}
			return "", 0, err
		}
		var lifetime time.Duration
		if !tok.Expiry.IsZero() {
			lifetime = time.Until(tok.Expiry)
		}
		return tok.AccessToken, lifetime, nil
	}
}
