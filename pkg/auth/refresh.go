package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	retry "github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"

	"github.com/bitechdev/JobFeed/pkg/logger"
)

var (
	ErrNoRefreshToken   = errors.New("auth: no refresh token")
	ErrRefreshRejected  = errors.New("auth: refresh token rejected")
	ErrNotAuthenticated = errors.New("auth: not authenticated")
)

// RefreshingProvider hands out the stored access token and refreshes it
// through <backend>/auth/refresh once it has expired.
type RefreshingProvider struct {
	store      Store
	backendURL string
	refreshURL string
	client     *http.Client
	retries    int
	skew       time.Duration
	now        func() time.Time
	newBackOff func() retry.BackOff

	mu sync.Mutex // one refresh at a time
}

// ProviderOption configures a RefreshingProvider.
type ProviderOption func(*RefreshingProvider)

// WithHTTPClient sets the client used for the refresh call.
func WithHTTPClient(c *http.Client) ProviderOption {
	return func(p *RefreshingProvider) { p.client = c }
}

// WithRetries sets how many times a failed refresh is retried.
func WithRetries(n int) ProviderOption {
	return func(p *RefreshingProvider) { p.retries = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) ProviderOption {
	return func(p *RefreshingProvider) { p.now = now }
}

// WithRetryBackOff sets the delay policy between refresh retries.
func WithRetryBackOff(fn func() retry.BackOff) ProviderOption {
	return func(p *RefreshingProvider) { p.newBackOff = fn }
}

// NewRefreshingProvider creates a provider backed by store.
func NewRefreshingProvider(store Store, backendURL string, opts ...ProviderOption) *RefreshingProvider {
	backendURL = strings.TrimRight(backendURL, "/")
	p := &RefreshingProvider{
		store:      store,
		backendURL: backendURL,
		refreshURL: backendURL + "/auth/refresh",
		client:     &http.Client{Timeout: 30 * time.Second},
		retries:    3,
		skew:       10 * time.Second,
		now:        time.Now,
		newBackOff: func() retry.BackOff {
			b := retry.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 5 * time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Token returns a valid access token, refreshing it when it expires within
// the clock skew. With no tokens at all it returns "" so the caller
// connects anonymously.
func (p *RefreshingProvider) Token(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	token := p.store.Token()
	if token != "" && !IsExpired(token, p.now().Add(p.skew)) {
		return token, nil
	}
	if p.store.RefreshToken() == "" {
		if token == "" {
			return "", nil
		}
		return "", ErrNoRefreshToken
	}
	return p.refresh(ctx)
}

// Refresh forces a refresh, e.g. after the backend answered 401.
func (p *RefreshingProvider) Refresh(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refresh(ctx)
}

func (p *RefreshingProvider) refresh(ctx context.Context) (string, error) {
	refreshToken := p.store.RefreshToken()
	if refreshToken == "" {
		return "", ErrNoRefreshToken
	}

	var resp refreshResponse
	attempt := 0
	op := func() error {
		attempt++
		r, err := p.post(ctx, refreshToken)
		if err != nil {
			logger.Debug("[Auth] Refresh attempt %d failed: %v", attempt, err)
			return err
		}
		resp = r
		return nil
	}

	policy := retry.WithContext(retry.WithMaxRetries(p.newBackOff(), uint64(p.retries)), ctx)
	if err := retry.Retry(op, policy); err != nil {
		if errors.Is(err, ErrRefreshRejected) {
			logger.Warn("[Auth] Refresh token rejected, clearing stored tokens")
			if clearErr := p.store.Clear(); clearErr != nil {
				logger.Error("[Auth] Failed to clear tokens: %v", clearErr)
			}
		}
		return "", fmt.Errorf("auth: refresh: %w", err)
	}

	if resp.RefreshToken == "" {
		resp.RefreshToken = refreshToken
	}
	if err := p.store.SetTokens(resp.Token, resp.RefreshToken); err != nil {
		return "", err
	}
	logger.Info("[Auth] Access token refreshed")
	return resp.Token, nil
}

type refreshResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
}

func (p *RefreshingProvider) post(ctx context.Context, refreshToken string) (refreshResponse, error) {
	var out refreshResponse

	body, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return out, retry.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.refreshURL, bytes.NewReader(body))
	if err != nil {
		return out, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return out, err
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return out, retry.Permanent(ErrRefreshRejected)
	case res.StatusCode >= 500:
		return out, fmt.Errorf("refresh endpoint returned %s", res.Status)
	case res.StatusCode >= 300:
		return out, retry.Permanent(fmt.Errorf("refresh endpoint returned %s", res.Status))
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, retry.Permanent(fmt.Errorf("decode refresh response: %w", err))
	}
	if out.Token == "" {
		return out, retry.Permanent(errors.New("refresh response has no token"))
	}
	return out, nil
}

// TokenSource adapts p to oauth2.TokenSource.
func (p *RefreshingProvider) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, p: p}
}

// HTTPClient returns a client that sends the bearer token with every request.
// The token is read from the store per request so a forced Refresh takes
// effect immediately.
func (p *RefreshingProvider) HTTPClient(ctx context.Context) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: p.TokenSource(ctx),
			Base:   p.client.Transport,
		},
		Timeout: p.client.Timeout,
	}
}

type tokenSource struct {
	ctx context.Context
	p   *RefreshingProvider
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	token, err := ts.p.Token(ts.ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrNotAuthenticated
	}
	t := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	if claims, err := DecodeClaims(token); err == nil {
		t.Expiry = claims.Expiry()
	}
	return t, nil
}
