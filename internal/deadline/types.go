// Package deadline selects projects and tasks that are due soon or already
// overdue from a read-only entity snapshot supplied by the data layer.
package deadline

import "time"

type Kind string

const (
	KindProject Kind = "project"
	KindTask    Kind = "task"
)

// Terminal states: items in these states never notify.
const (
	StatusDone      = "done"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

type Project struct {
	ID       string
	Name     string
	Status   string
	DueDate  time.Time // zero means no deadline
	Owner    string
	Progress int
}

type Task struct {
	ID         string
	Title      string
	Status     string
	DueDate    time.Time // zero means no deadline
	ProjectID  string
	AssignedTo string
	Progress   int
}

type User struct {
	ID          string
	DisplayName string
	Timezone    string
}

// Snapshot is the read-only view of the data layer taken at collection
// time. The collector never mutates it and never holds it across cycles.
type Snapshot struct {
	Projects []Project
	Tasks    []Task
	Users    []User
}

// UserTimezone resolves a user's timezone, empty when unknown.
func (s Snapshot) UserTimezone(userID string) string {
	for _, u := range s.Users {
		if u.ID == userID {
			return u.Timezone
		}
	}
	return ""
}

// Item is one near-due or overdue entry, an immutable snapshot taken at
// collection time.
type Item struct {
	ID          string
	Kind        Kind
	Title       string
	DueDate     time.Time
	AssigneeID  string
	Progress    int
	ProjectName string // tasks only; empty when the parent is unresolved
}

func terminal(status string) bool {
	switch status {
	case StatusDone, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
