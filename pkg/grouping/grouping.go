// Package grouping turns a recipient's raw notifications into the list the
// UI renders, collapsing unread application events for the same job into a
// single summary entry.
package grouping

import (
	"fmt"
	"slices"
	"strings"

	"jobboard-notify-be/internal/entity"
)

const summaryIDPrefix = "group:"

// SummaryID builds the identifier of a summary record. Raw ids are UUIDs and
// never contain the prefix.
func SummaryID(jobID, latestID string) string {
	return summaryIDPrefix + jobID + ":" + latestID
}

func IsSummaryID(id string) bool {
	return strings.HasPrefix(id, summaryIDPrefix)
}

// Groupable reports whether a raw record takes part in grouping.
func Groupable(n entity.RawNotification) bool {
	return n.Type == entity.NotificationTypeNewApplication && n.JobID != "" && !n.IsRead
}

// Group expects raw ordered by CreatedAt descending, as the store delivers it.
// It never mutates its input and keeps no state between calls.
func Group(raw []entity.RawNotification) []entity.DisplayNotification {
	if len(raw) == 0 {
		return []entity.DisplayNotification{}
	}

	buckets := make(map[string][]entity.RawNotification)
	var jobOrder []string
	for _, n := range raw {
		if !Groupable(n) {
			continue
		}
		if _, seen := buckets[n.JobID]; !seen {
			jobOrder = append(jobOrder, n.JobID)
		}
		buckets[n.JobID] = append(buckets[n.JobID], n)
	}

	out := make([]entity.DisplayNotification, 0, len(raw))
	for _, jobID := range jobOrder {
		if members := buckets[jobID]; len(members) >= 2 {
			out = append(out, summarize(members))
		}
	}
	for _, n := range raw {
		if Groupable(n) && len(buckets[n.JobID]) >= 2 {
			continue
		}
		out = append(out, entity.DisplayNotification{RawNotification: n})
	}

	// The timestamp order is authoritative; the placement above only breaks ties.
	slices.SortStableFunc(out, func(a, b entity.DisplayNotification) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out
}

func summarize(members []entity.RawNotification) entity.DisplayNotification {
	latest := members[0]

	names := make([]string, len(members))
	ids := make([]string, len(members))
	for i, m := range members {
		names[i] = m.SenderName
		ids[i] = m.ID
	}

	summary := entity.DisplayNotification{
		RawNotification:   latest,
		ApplicantCount:    len(members),
		NewApplicantNames: names,
		OriginalIDs:       ids,
	}
	summary.ID = SummaryID(latest.JobID, latest.ID)
	summary.Message = fmt.Sprintf("**%d** new candidates have applied for **%s**.", len(members), latest.JobTitle)
	summary.SenderName = joinSenders(names)
	return summary
}

// joinSenders keeps duplicate names; "Ann, Ann and 1 others" is possible.
func joinSenders(names []string) string {
	if len(names) <= 2 {
		return strings.Join(names, ", ")
	}
	return fmt.Sprintf("%s and %d others", strings.Join(names[:2], ", "), len(names)-2)
}

// UnreadCount counts display records the recipient has not read. Summaries
// are always unread.
func UnreadCount(display []entity.DisplayNotification) int {
	count := 0
	for _, d := range display {
		if !d.IsRead {
			count++
		}
	}
	return count
}
