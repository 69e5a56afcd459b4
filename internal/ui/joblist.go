// Package ui renders the HTML pages of the job server.
package ui

import (
	"net/url"
	"time"
)

// JobListItem is the view model of one row in the job table
type JobListItem struct {
	ID          string
	State       string
	InputPath   string
	Width       int
	Height      int
	FilterParam float64
	RowsDone    int
	StartTime   time.Time
	EndTime     *time.Time
	Error       string
}

// Progress returns the completed fraction in percent
func (j JobListItem) Progress() float64 {
	if j.Height <= 0 {
		return 0
	}
	return 100 * float64(j.RowsDone) / float64(j.Height)
}

// Elapsed returns the run time so far, or the total once finished
func (j JobListItem) Elapsed(now time.Time) time.Duration {
	end := now
	if j.EndTime != nil {
		end = *j.EndTime
	}
	return end.Sub(j.StartTime).Round(time.Millisecond)
}

// jobURL returns the API path of a job resource; an empty action addresses the job itself
func jobURL(id, action string) string {
	u := "/api/v1/jobs/" + url.PathEscape(id)
	if action != "" {
		u += "/" + action
	}
	return u
}
