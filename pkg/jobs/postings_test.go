package jobs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

type postedBodies struct {
	mu sync.Mutex
	m  map[string]string
}

func (p *postedBodies) set(path, body string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.m[path] = body
}

func (p *postedBodies) get(path string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.m[path]
}

// newPostingServer accepts requests carrying "Bearer valid" and records
// the last body posted to each path.
func newPostingServer(t *testing.T, valid string) (*httptest.Server, *postedBodies) {
	t.Helper()
	bodies := &postedBodies{m: make(map[string]string)}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if r.Header.Get("Authorization") != "Bearer "+valid {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.Method == http.MethodPost {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			bodies.set(r.URL.Path, string(data))
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/jobs":
			fmt.Fprintf(w, `{"id":12,"title":%q,"createdAt":"2026-03-02T10:00:00"}`, gjson.Get(string(data), "title").String())
		case r.Method == http.MethodPost && r.URL.Path == "/jobs/12/apply":
			w.WriteHeader(http.StatusCreated)
		case r.Method == http.MethodPost && r.URL.Path == "/jobs/13/apply":
			w.WriteHeader(http.StatusConflict)
			fmt.Fprint(w, `{"message":"already applied"}`)
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/12/applicants":
			fmt.Fprint(w, `[
				{"id":1,"email":"ada@example.com","name":"Ada","resumeUrl":"https://cv/ada.pdf","appliedAt":"2026-03-03T08:30:00"},
				{"id":"u-2","email":"bob@example.com","name":"Bob","resumeUrl":"https://cv/bob.pdf","coverLetter":"hi"}
			]`)
		case r.Method == http.MethodGet && r.URL.Path == "/jobs/13/applicants":
			fmt.Fprint(w, `{"content":[]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, bodies
}

func TestCreate(t *testing.T) {
	r := &fakeRefresher{token: "fresh"}
	srv, bodies := newPostingServer(t, "fresh")
	api := NewAPI(srv.URL, &http.Client{Transport: bearer{r}}, r)

	job, err := api.Create(context.Background(), Draft{
		Title:        " Go Developer ",
		Company:      "Acme",
		Location:     "Remote",
		Description:  "Build feeds",
		Requirements: []string{"Go", " ", "SQL "},
	})
	require.NoError(t, err)
	assert.Equal(t, "12", job.ID)
	assert.Equal(t, "Go Developer", job.Title)
	assert.Equal(t, time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC), job.CreatedAt)

	assert.JSONEq(t, `{"title":"Go Developer","company":"Acme","location":"Remote",
		"description":"Build feeds","requirements":["Go","SQL"],"type":"FULL_TIME"}`, bodies.get("/jobs"))
}

func TestCreateValidates(t *testing.T) {
	api := NewAPI("http://unused.invalid", nil, nil)

	tests := []struct {
		name  string
		draft Draft
		want  string
	}{
		{"title", Draft{Company: "A", Location: "B", Description: "C"}, "title is required"},
		{"company", Draft{Title: "T", Location: "B", Description: "C"}, "company is required"},
		{"location", Draft{Title: "T", Company: "A", Description: "C"}, "location is required"},
		{"description", Draft{Title: "T", Company: "A", Location: "B", Description: "  "}, "description is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := api.Create(context.Background(), tt.draft)
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestApplyRetriesAfterRefresh(t *testing.T) {
	r := &fakeRefresher{token: "stale"}
	srv, bodies := newPostingServer(t, "fresh")
	api := NewAPI(srv.URL, &http.Client{Transport: bearer{r}}, r)

	err := api.Apply(context.Background(), "12", Application{ResumeURL: "https://cv/me.pdf", CoverLetter: "hello"})
	require.NoError(t, err)
	assert.Equal(t, 1, r.calls)
	assert.JSONEq(t, `{"resumeUrl":"https://cv/me.pdf","coverLetter":"hello"}`, bodies.get("/jobs/12/apply"))
}

func TestApplyErrors(t *testing.T) {
	r := &fakeRefresher{token: "fresh"}
	srv, _ := newPostingServer(t, "fresh")
	api := NewAPI(srv.URL, &http.Client{Transport: bearer{r}}, r)

	assert.ErrorContains(t, api.Apply(context.Background(), "12", Application{}), "resume url is required")
	assert.ErrorContains(t, api.Apply(context.Background(), "13", Application{ResumeURL: "x"}), "already applied")
	assert.ErrorIs(t, api.Apply(context.Background(), "99", Application{ResumeURL: "x"}), ErrNotFound)
}

func TestApplicants(t *testing.T) {
	r := &fakeRefresher{token: "fresh"}
	srv, _ := newPostingServer(t, "fresh")
	api := NewAPI(srv.URL, &http.Client{Transport: bearer{r}}, r)

	list, err := api.Applicants(context.Background(), "12")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, Applicant{
		ID:        "1",
		Email:     "ada@example.com",
		Name:      "Ada",
		ResumeURL: "https://cv/ada.pdf",
		AppliedAt: time.Date(2026, 3, 3, 8, 30, 0, 0, time.UTC),
	}, list[0])
	assert.Equal(t, "u-2", list[1].ID)
	assert.Equal(t, "hi", list[1].CoverLetter)
	assert.True(t, list[1].AppliedAt.IsZero())

	_, err = api.Applicants(context.Background(), "13")
	assert.ErrorContains(t, err, "invalid applicants response")
}
