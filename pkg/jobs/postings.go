package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"github.com/bitechdev/JobFeed/pkg/logger"
)

// Draft is a job posting to be created. Creating jobs requires an admin token.
type Draft struct {
	Title        string   `json:"title"`
	Company      string   `json:"company"`
	Location     string   `json:"location"`
	Description  string   `json:"description"`
	Requirements []string `json:"requirements"`
	Salary       string   `json:"salary,omitempty"`
	Type         string   `json:"type"`
}

// Validate trims d and reports the first missing required field.
func (d *Draft) Validate() error {
	d.Title = strings.TrimSpace(d.Title)
	d.Company = strings.TrimSpace(d.Company)
	d.Location = strings.TrimSpace(d.Location)
	d.Description = strings.TrimSpace(d.Description)
	d.Salary = strings.TrimSpace(d.Salary)

	reqs := d.Requirements[:0]
	for _, r := range d.Requirements {
		if r = strings.TrimSpace(r); r != "" {
			reqs = append(reqs, r)
		}
	}
	d.Requirements = reqs
	if d.Requirements == nil {
		d.Requirements = []string{}
	}

	switch {
	case d.Title == "":
		return errors.New("jobs: title is required")
	case d.Company == "":
		return errors.New("jobs: company is required")
	case d.Location == "":
		return errors.New("jobs: location is required")
	case d.Description == "":
		return errors.New("jobs: description is required")
	}
	if d.Type == "" {
		d.Type = "FULL_TIME"
	}
	return nil
}

// Application is what a candidate sends when applying.
type Application struct {
	ResumeURL   string `json:"resumeUrl"`
	CoverLetter string `json:"coverLetter,omitempty"`
}

// Applicant is one application as listed for admins.
type Applicant struct {
	ID          string
	Email       string
	Name        string
	ResumeURL   string
	CoverLetter string
	AppliedAt   time.Time
}

// Create posts a new job and returns it as stored by the backend.
func (a *API) Create(ctx context.Context, d Draft) (*Job, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	body, err := a.post(ctx, "/jobs", d)
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("jobs: decode created job: %w", err)
	}
	logger.Info("[Jobs] Created job %s (%s)", job.ID, job.Title)
	return &job, nil
}

// Apply submits an application for job id.
func (a *API) Apply(ctx context.Context, id string, app Application) error {
	if strings.TrimSpace(app.ResumeURL) == "" {
		return errors.New("jobs: resume url is required")
	}
	if _, err := a.post(ctx, "/jobs/"+url.PathEscape(id)+"/apply", app); err != nil {
		return err
	}
	logger.Info("[Jobs] Applied to job %s", id)
	return nil
}

// Applicants lists the applications for job id.
func (a *API) Applicants(ctx context.Context, id string) ([]Applicant, error) {
	body, err := a.get(ctx, "/jobs/"+url.PathEscape(id)+"/applicants")
	if err != nil {
		return nil, err
	}
	root := gjson.ParseBytes(body)
	if !gjson.ValidBytes(body) || !root.IsArray() {
		return nil, errors.New("jobs: invalid applicants response")
	}

	var out []Applicant
	root.ForEach(func(_, v gjson.Result) bool {
		app := Applicant{
			ID:          v.Get("id").String(),
			Email:       v.Get("email").String(),
			Name:        v.Get("name").String(),
			ResumeURL:   v.Get("resumeUrl").String(),
			CoverLetter: v.Get("coverLetter").String(),
		}
		if at := v.Get("appliedAt").String(); at != "" {
			if t, err := parseTime(at); err == nil {
				app.AppliedAt = t
			} else {
				logger.Debug("[Jobs] Applicant %s has invalid appliedAt %q", app.ID, at)
			}
		}
		out = append(out, app)
		return true
	})
	return out, nil
}
