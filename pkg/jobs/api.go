package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/bitechdev/JobFeed/pkg/logger"
)

// DefaultPageSize matches the backend's listing page size.
const DefaultPageSize = 20

// ErrUnauthorized is returned when the backend rejects the request even
// after a token refresh.
var ErrUnauthorized = errors.New("jobs: unauthorized")

// Refresher forces a token refresh. auth.RefreshingProvider implements it.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// API talks to the backend's job listing.
type API struct {
	baseURL   string
	client    *http.Client
	refresher Refresher
}

// NewAPI creates an API client. client must attach credentials itself,
// e.g. auth.RefreshingProvider.HTTPClient. refresher may be nil.
func NewAPI(baseURL string, client *http.Client, refresher Refresher) *API {
	if client == nil {
		client = http.DefaultClient
	}
	return &API{
		baseURL:   strings.TrimRight(baseURL, "/"),
		client:    client,
		refresher: refresher,
	}
}

// ListPage fetches one page of jobs. page starts at 0.
func (a *API) ListPage(ctx context.Context, page, size int, search string) (Page, error) {
	if size <= 0 {
		size = DefaultPageSize
	}
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("size", strconv.Itoa(size))
	if search != "" {
		q.Set("search", search)
	}

	body, err := a.get(ctx, "/jobs?"+q.Encode())
	if err != nil {
		return Page{}, err
	}
	return parsePage(body)
}

// Get fetches a single job.
func (a *API) Get(ctx context.Context, id string) (*Job, error) {
	body, err := a.get(ctx, "/jobs/"+url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("jobs: decode job %s: %w", id, err)
	}
	return &job, nil
}

// Sync copies every listed job into store and returns how many were new.
func (a *API) Sync(ctx context.Context, store *Store, search string) (int, error) {
	created := 0
	for page, total := 0, 1; page < total; page++ {
		p, err := a.ListPage(ctx, page, DefaultPageSize, search)
		if err != nil {
			return created, err
		}
		total = p.TotalPages
		for i := range p.Content {
			isNew, err := store.Upsert(ctx, &p.Content[i])
			if err != nil {
				return created, err
			}
			if isNew {
				created++
			}
		}
	}
	logger.Info("[Jobs] Synced jobs from %s, %d new", a.baseURL, created)
	return created, nil
}

// parsePage accepts a paged object or a bare array.
func parsePage(body []byte) (Page, error) {
	if !gjson.ValidBytes(body) {
		return Page{}, errors.New("jobs: invalid listing response")
	}
	root := gjson.ParseBytes(body)
	content := root.Get("content")
	if root.IsArray() {
		content = root
	}

	page := Page{TotalPages: int(root.Get("totalPages").Int())}
	if page.TotalPages < 1 {
		page.TotalPages = 1
	}
	if !content.Exists() {
		return page, nil
	}
	if err := json.Unmarshal([]byte(content.Raw), &page.Content); err != nil {
		return Page{}, fmt.Errorf("jobs: decode listing: %w", err)
	}
	return page, nil
}

func (a *API) get(ctx context.Context, path string) ([]byte, error) {
	return a.call(ctx, http.MethodGet, path, nil)
}

func (a *API) post(ctx context.Context, path string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("jobs: encode %s: %w", path, err)
	}
	return a.call(ctx, http.MethodPost, path, body)
}

// call sends the request and retries it once after a token refresh when the
// backend answers 401.
func (a *API) call(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	status, body, err := a.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized && a.refresher != nil {
		logger.Debug("[Jobs] %s %s answered 401, refreshing token", method, path)
		if _, err := a.refresher.Refresh(ctx); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnauthorized, err)
		}
		status, body, err = a.do(ctx, method, path, payload)
		if err != nil {
			return nil, err
		}
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return nil, ErrUnauthorized
	case status == http.StatusNotFound:
		return nil, ErrNotFound
	case status >= 300:
		if msg := gjson.GetBytes(body, "message").String(); msg != "" {
			return nil, fmt.Errorf("jobs: %s %s: status %d: %s", method, path, status, msg)
		}
		return nil, fmt.Errorf("jobs: %s %s: status %d", method, path, status)
	}
	return body, nil
}

func (a *API) do(ctx context.Context, method, path string, payload []byte) (int, []byte, error) {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reqBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("jobs: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("jobs: read %s: %w", path, err)
	}
	return resp.StatusCode, body, nil
}
