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

	"github.com/tidwall/gjson"

	"github.com/bitechdev/JobFeed/pkg/logger"
)

// ErrInvalidCredentials is returned when the backend rejects a login.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Registration is the payload of a new account.
type Registration struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

// Login exchanges email and password for tokens and stores them.
func (p *RefreshingProvider) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return errors.New("auth: email and password are required")
	}
	return p.authenticate(ctx, "/auth/login", map[string]string{"email": email, "password": password})
}

// Register creates an account and stores the tokens it comes with.
func (p *RefreshingProvider) Register(ctx context.Context, r Registration) error {
	r.Email = strings.TrimSpace(r.Email)
	r.Name = strings.TrimSpace(r.Name)
	if r.Email == "" || r.Password == "" || r.Name == "" {
		return errors.New("auth: email, password and name are required")
	}
	return p.authenticate(ctx, "/auth/register", r)
}

func (p *RefreshingProvider) authenticate(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.backendURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("auth: %s: %w", path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return err
	}

	if res.StatusCode >= 300 {
		msg := gjson.GetBytes(data, "message").String()
		if msg == "" {
			msg = res.Status
		}
		if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
			return fmt.Errorf("%w: %s", ErrInvalidCredentials, msg)
		}
		return fmt.Errorf("auth: %s: %s", path, msg)
	}

	var out refreshResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("auth: decode %s response: %w", path, err)
	}
	if out.Token == "" {
		return fmt.Errorf("auth: %s response has no token", path)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.SetTokens(out.Token, out.RefreshToken); err != nil {
		return err
	}
	logger.Info("[Auth] Signed in via %s", path)
	return nil
}
