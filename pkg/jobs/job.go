// Package jobs keeps a local copy of job postings received from the
// backend and the user's bookmarks.
package jobs

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Job is a job posting.
type Job struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	Title          string    `gorm:"index" json:"title"`
	Company        string    `json:"company"`
	Location       string    `json:"location"`
	Description    string    `json:"description"`
	Requirements   []string  `gorm:"serializer:json" json:"requirements"`
	Salary         string    `json:"salary,omitempty"`
	Type           string    `json:"type"`
	CreatedAt      time.Time `gorm:"index" json:"createdAt"`
	ApplicantCount int       `json:"applicantCount,omitempty"`
	UpdatedAt      time.Time `json:"-"`
}

// Bookmark marks a job as saved by the user.
type Bookmark struct {
	JobID     string    `gorm:"primaryKey"`
	CreatedAt time.Time `gorm:"index"`
}

// Page is one page of the backend's job listing.
type Page struct {
	Content    []Job `json:"content"`
	TotalPages int   `json:"totalPages"`
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON accepts numeric ids and timestamps without a zone.
func (j *Job) UnmarshalJSON(data []byte) error {
	type plain Job
	aux := struct {
		*plain
		ID        any    `json:"id"`
		CreatedAt string `json:"createdAt"`
	}{plain: (*plain)(j)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch id := aux.ID.(type) {
	case nil:
		j.ID = ""
	case string:
		j.ID = id
	case float64:
		j.ID = strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Errorf("jobs: unsupported id %v", id)
	}

	j.CreatedAt = time.Time{}
	if aux.CreatedAt == "" {
		return nil
	}
	t, err := parseTime(aux.CreatedAt)
	if err != nil {
		return fmt.Errorf("jobs: invalid createdAt %q", aux.CreatedAt)
	}
	j.CreatedAt = t
	return nil
}

func parseTime(s string) (time.Time, error) {
	var err error
	for _, layout := range timeLayouts {
		var t time.Time
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, err
}
