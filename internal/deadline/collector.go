package deadline

import "time"

// DefaultHorizonDays is how far ahead the collector looks for deadlines.
const DefaultHorizonDays = 3

// DaysUntilDue is the calendar-date difference between due and now in loc:
// midnight-to-midnight, so an item due later today is 0 days away and an
// item that was due yesterday is -1 regardless of the time of day.
func DaysUntilDue(due, now time.Time, loc *time.Location) int {
	if loc == nil {
		loc = time.UTC
	}
	d := due.In(loc)
	n := now.In(loc)
	dd := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
	nd := time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, time.UTC)
	return int(dd.Sub(nd) / (24 * time.Hour))
}

// Collect selects the items due within horizonDays (overdue included, no
// lower bound). Output order follows the source lists: projects first, then
// tasks. An unresolved parent project leaves the task's project name empty
// rather than dropping the item.
func Collect(snap Snapshot, horizonDays int, now time.Time, loc *time.Location) []Item {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}

	projectNames := make(map[string]string, len(snap.Projects))
	for _, p := range snap.Projects {
		projectNames[p.ID] = p.Name
	}

	var items []Item
	for _, p := range snap.Projects {
		if terminal(p.Status) || p.DueDate.IsZero() {
			continue
		}
		if DaysUntilDue(p.DueDate, now, loc) > horizonDays {
			continue
		}
		items = append(items, Item{
			ID:         p.ID,
			Kind:       KindProject,
			Title:      p.Name,
			DueDate:    p.DueDate,
			AssigneeID: p.Owner,
			Progress:   p.Progress,
		})
	}
	for _, t := range snap.Tasks {
		if terminal(t.Status) || t.DueDate.IsZero() {
			continue
		}
		if DaysUntilDue(t.DueDate, now, loc) > horizonDays {
			continue
		}
		items = append(items, Item{
			ID:          t.ID,
			Kind:        KindTask,
			Title:       t.Title,
			DueDate:     t.DueDate,
			AssigneeID:  t.AssignedTo,
			Progress:    t.Progress,
			ProjectName: projectNames[t.ProjectID],
		})
	}
	return items
}

// ForAssignee filters items down to a single assignee, preserving order.
func ForAssignee(items []Item, assigneeID string) []Item {
	var out []Item
	for _, it := range items {
		if it.AssigneeID == assigneeID {
			out = append(out, it)
		}
	}
	return out
}
