package analytics

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"chat-widget/internal/transcript"
)

// DailyStats summarises one day of the transcript.
type DailyStats struct {
	Date            string                  `json:"date"`
	TotalMessages   int                     `json:"total_messages"`
	ByAuthor        map[string]int          `json:"by_author"`
	ByKind          map[transcript.Kind]int `json:"by_kind"`
	Replies         int                     `json:"replies"`
	AvgReplyLatency time.Duration           `json:"avg_reply_latency"`
}

// AnalyzeDay computes stats for the events falling on targetDate's calendar day.
func AnalyzeDay(events []transcript.Event, targetDate time.Time) *DailyStats {
	startOfDay, endOfDay := transcript.Day(targetDate)

	stats := &DailyStats{
		Date:     startOfDay.Format("2006-01-02"),
		ByAuthor: make(map[string]int),
		ByKind:   make(map[transcript.Kind]int),
	}

	var (
		lastUser     time.Time
		haveUser     bool
		totalLatency time.Duration
		measured     int
	)
	for _, ev := range events {
		if ev.Timestamp.Before(startOfDay) || !ev.Timestamp.Before(endOfDay) {
			continue
		}
		stats.TotalMessages++
		stats.ByAuthor[ev.Author]++
		stats.ByKind[ev.Kind]++

		switch ev.Kind {
		case transcript.KindMessage:
			lastUser, haveUser = ev.Timestamp, true
		case transcript.KindReply:
			stats.Replies++
			if haveUser && !ev.Timestamp.Before(lastUser) {
				totalLatency += ev.Timestamp.Sub(lastUser)
				measured++
			}
		}
	}
	if measured > 0 {
		stats.AvgReplyLatency = totalLatency / time.Duration(measured)
	}
	return stats
}

// Summary renders a short human-readable report.
func (ds *DailyStats) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Chat widget activity for %s:\n", ds.Date)
	fmt.Fprintf(&b, "- messages: %d\n", ds.TotalMessages)

	authors := make([]string, 0, len(ds.ByAuthor))
	for a := range ds.ByAuthor {
		authors = append(authors, a)
	}
	sort.Strings(authors)
	for _, a := range authors {
		fmt.Fprintf(&b, "- from %s: %d\n", a, ds.ByAuthor[a])
	}
	fmt.Fprintf(&b, "- attachments: %d\n", ds.ByKind[transcript.KindAttachment])
	fmt.Fprintf(&b, "- replies: %d", ds.Replies)
	if ds.AvgReplyLatency > 0 {
		fmt.Fprintf(&b, " (avg latency %s)", ds.AvgReplyLatency.Round(time.Millisecond))
	}
	b.WriteString("\n")
	return b.String()
}

// ToJSON returns the indented JSON form of the stats.
func (ds *DailyStats) ToJSON() (string, error) {
	data, err := json.MarshalIndent(ds, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
