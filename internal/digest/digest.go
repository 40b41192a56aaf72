// Package digest renders a severity-tiered deadline digest for exactly one
// timezone. Compose is pure: no clock reads, no I/O, safe to call
// repeatedly for previews.
package digest

import (
	"fmt"
	"strings"
	"time"

	"duebot/internal/deadline"
)

const (
	headerMarker   = "\U0001F4CB" // clipboard
	upcomingMarker = "\u23F0"     // alarm clock
	overdueMarker  = "\U0001F6A8" // rotating light
	projectMarker  = "\U0001F4C1" // folder
	taskMarker     = "\U0001F4DD" // memo
)

const dueDateFormat = "Mon, 02 Jan 2006"

// Compose builds the digest text for items as seen from tz at the instant
// now. Items are partitioned into an upcoming section and an overdue
// section; an empty bucket renders no section at all. Compose does not
// re-apply the collection horizon: callers pass items already selected by
// deadline.Collect, and anything not overdue renders as upcoming.
// Identical inputs produce byte-identical output.
func Compose(items []deadline.Item, tz string, now time.Time) string {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
		tz = "UTC"
	}

	var upcoming, overdue []deadline.Item
	for _, it := range items {
		if deadline.DaysUntilDue(it.DueDate, now, loc) < 0 {
			overdue = append(overdue, it)
		} else {
			upcoming = append(upcoming, it)
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s Deadline digest (%s)\n%s\n", headerMarker, tz, now.In(loc).Format("Mon, 02 Jan 2006 15:04"))

	if len(upcoming) > 0 {
		fmt.Fprintf(&b, "\n%s Upcoming\n", upcomingMarker)
		for _, it := range upcoming {
			writeItem(&b, it, now, loc)
		}
	}
	if len(overdue) > 0 {
		fmt.Fprintf(&b, "\n%s Overdue\n", overdueMarker)
		for _, it := range overdue {
			writeItem(&b, it, now, loc)
		}
	}
	if len(upcoming) == 0 && len(overdue) == 0 {
		b.WriteString("\nNo deadlines in the notification horizon.\n")
	}
	return b.String()
}

func writeItem(b *strings.Builder, it deadline.Item, now time.Time, loc *time.Location) {
	marker := taskMarker
	if it.Kind == deadline.KindProject {
		marker = projectMarker
	}
	days := deadline.DaysUntilDue(it.DueDate, now, loc)
	fmt.Fprintf(b, "%s %s: due %s (%s), %d%% done", marker, it.Title, it.DueDate.In(loc).Format(dueDateFormat), duePhrase(days), it.Progress)
	if it.ProjectName != "" {
		fmt.Fprintf(b, " [%s]", it.ProjectName)
	}
	b.WriteByte('\n')
}

func duePhrase(days int) string {
	switch {
	case days == 0:
		return "today"
	case days == 1:
		return "in 1 day"
	case days > 1:
		return fmt.Sprintf("in %d days", days)
	case days == -1:
		return "1 day overdue"
	default:
		return fmt.Sprintf("%d days overdue", -days)
	}
}
