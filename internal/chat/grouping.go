package chat

import (
	"time"

	"github.com/JayanthReddyKonda/recovery-ease-frontend/internal/models"
)

// DayGroup 同一天的连续消息
type DayGroup struct {
	Label    string
	Day      time.Time
	Messages []models.ChatMessage
}

// GroupByDate buckets consecutive messages by the local calendar day of
// CreatedAt. Order is preserved; a day that reappears after another day
// starts a new bucket.
func GroupByDate(msgs []models.ChatMessage, now time.Time) []DayGroup {
	var groups []DayGroup
	for _, m := range msgs {
		day := startOfDay(m.CreatedAt.In(now.Location()))
		if n := len(groups); n > 0 && groups[n-1].Day.Equal(day) {
			groups[n-1].Messages = append(groups[n-1].Messages, m)
			continue
		}
		groups = append(groups, DayGroup{
			Label:    DateLabel(day, now),
			Day:      day,
			Messages: []models.ChatMessage{m},
		})
	}
	return groups
}

// DateLabel 返回 Today / Yesterday / "Jan 2"
func DateLabel(t, now time.Time) string {
	day := startOfDay(t.In(now.Location()))
	today := startOfDay(now)
	switch {
	case day.Equal(today):
		return "Today"
	case day.Equal(today.AddDate(0, 0, -1)):
		return "Yesterday"
	}
	return day.Format("Jan 2")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
