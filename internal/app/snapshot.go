package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"duebot/internal/deadline"
)

// snapshotFile is the JSON document the host application exports. Dates are
// RFC 3339 or plain calendar dates; absent due dates mean "no deadline".
type snapshotFile struct {
	Projects []struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Status   string `json:"status"`
		DueDate  string `json:"due_date,omitempty"`
		Owner    string `json:"owner,omitempty"`
		Progress int    `json:"progress"`
	} `json:"projects"`
	Tasks []struct {
		ID         string `json:"id"`
		Title      string `json:"title"`
		Status     string `json:"status"`
		DueDate    string `json:"due_date,omitempty"`
		ProjectID  string `json:"project_id,omitempty"`
		AssignedTo string `json:"assigned_to,omitempty"`
		Progress   int    `json:"progress"`
	} `json:"tasks"`
	Users []struct {
		ID          string `json:"id"`
		DisplayName string `json:"display_name,omitempty"`
		Timezone    string `json:"timezone,omitempty"`
	} `json:"users"`
}

// fileSnapshot re-reads the export fresh on every call, per the boundary
// rule: the scheduler never holds entity data across cycles.
func fileSnapshot(path string) func(ctx context.Context) (deadline.Snapshot, error) {
	return func(ctx context.Context) (deadline.Snapshot, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return deadline.Snapshot{}, fmt.Errorf("reading snapshot: %w", err)
		}
		var f snapshotFile
		if err := json.Unmarshal(b, &f); err != nil {
			return deadline.Snapshot{}, fmt.Errorf("parsing snapshot: %w", err)
		}

		var snap deadline.Snapshot
		for _, p := range f.Projects {
			snap.Projects = append(snap.Projects, deadline.Project{
				ID:       p.ID,
				Name:     p.Name,
				Status:   p.Status,
				DueDate:  parseDate(p.DueDate),
				Owner:    p.Owner,
				Progress: p.Progress,
			})
		}
		for _, t := range f.Tasks {
			snap.Tasks = append(snap.Tasks, deadline.Task{
				ID:         t.ID,
				Title:      t.Title,
				Status:     t.Status,
				DueDate:    parseDate(t.DueDate),
				ProjectID:  t.ProjectID,
				AssignedTo: t.AssignedTo,
				Progress:   t.Progress,
			})
		}
		for _, u := range f.Users {
			snap.Users = append(snap.Users, deadline.User{
				ID:          u.ID,
				DisplayName: u.DisplayName,
				Timezone:    u.Timezone,
			})
		}
		return snap, nil
	}
}

func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return time.Time{}
}
