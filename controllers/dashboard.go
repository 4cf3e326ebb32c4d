package controllers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	dbpkg "chatrelay/db"
	"chatrelay/models"
	"chatrelay/pipeline"

	"github.com/gin-gonic/gin"
)

// ------------------------------
// Dashboard - Stats
// ------------------------------

type messagesPerDayRow struct {
	Day   string `json:"day"`
	Count int64  `json:"count"`
}

// GET /api/dashboard/messages-per-day?user_id=
// Query params:
// - from=YYYY-MM-DD (optional, default: today-6)
// - to=YYYY-MM-DD   (optional, default: today)
// Daily series of processed assistant replies, zero-filled.
func GetMessagesPerDay(c *gin.Context) {
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	from, to, ok := parseDateRange(c)
	if !ok {
		return
	}

	// normalize to start of day and use an exclusive upper bound
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.Local)
	toInclusive := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.Local)
	toExclusive := toInclusive.AddDate(0, 0, 1)

	dialect := strings.ToLower(db.Dialect().GetName())
	dayExpr := "date(messages.sent_at)"
	if strings.Contains(dialect, "sqlite") {
		dayExpr = "strftime('%Y-%m-%d', messages.sent_at, 'localtime')"
	} else if strings.Contains(dialect, "postgres") {
		dayExpr = "to_char(date_trunc('day', messages.sent_at), 'YYYY-MM-DD')"
	}

	var rows []messagesPerDayRow
	q := db.Table("messages").
		Select(fmt.Sprintf("%s as day, count(*) as count", dayExpr)).
		Joins("join conversations on conversations.id = messages.conversation_id").
		Where("conversations.user_id = ?", userID).
		Where("messages.sender = ? AND messages.sent_at >= ? AND messages.sent_at < ?",
			models.MESSAGE_SENDER_ASSISTANT, from, toExclusive).
		Group("day").
		Order("day asc")

	if err := q.Scan(&rows).Error; err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	series := fillDailySeries(from, to, rows)
	RespondSuccess(c, gin.H{
		"from":   from.Format("2006-01-02"),
		"to":     to.Format("2006-01-02"),
		"series": series,
	})
}

type usageRow struct {
	Provider  string     `json:"provider"`
	Endpoint  string     `json:"endpoint"`
	CallsMade int64      `json:"calls_made"`
	Limit     int64      `json:"limit"`
	Remaining int64      `json:"remaining"`
	ResetsAt  *time.Time `json:"resets_at"`
}

// GET /api/dashboard/usage?user_id=
// Current rate-window consumption per provider/endpoint. Only the gated
// voiceflow/interact counter carries a limit; tracked-only counters show 0.
func GetRateUsage(c *gin.Context) {
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	dailyLimit := int64(0)
	if proc := pipeline.FromContext(c); proc != nil {
		dailyLimit = proc.DailyLimit
	}

	var counters []models.RateLimit
	if err := db.Where("user_id = ?", userID).
		Order("provider asc, endpoint asc").
		Find(&counters).Error; err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	now := time.Now()
	rows := make([]usageRow, 0, len(counters))
	for _, r := range counters {
		row := usageRow{
			Provider: r.Provider,
			Endpoint: r.Endpoint,
			ResetsAt: r.ResetsAt,
		}
		// an elapsed window reads as zero consumption
		if r.ResetsAt != nil && r.ResetsAt.After(now) {
			row.CallsMade = r.CallsMade
		}
		if r.Provider == models.RATE_PROVIDER_VOICEFLOW && r.Endpoint == models.RATE_ENDPOINT_INTERACT {
			row.Limit = dailyLimit
			if row.Limit > 0 {
				row.Remaining = row.Limit - row.CallsMade
				if row.Remaining < 0 {
					row.Remaining = 0
				}
			}
		}
		rows = append(rows, row)
	}

	RespondSuccess(c, gin.H{"usage": rows})
}

// ------------------------------
// Helpers
// ------------------------------

func parseDateRange(c *gin.Context) (time.Time, time.Time, bool) {
	// defaults: last 7 days
	now := time.Now()
	defTo := now
	defFrom := now.AddDate(0, 0, -6)

	fromStr := strings.TrimSpace(c.Query("from"))
	toStr := strings.TrimSpace(c.Query("to"))

	from := defFrom
	to := defTo
	var err error

	if fromStr != "" {
		from, err = time.ParseInLocation("2006-01-02", fromStr, time.Local)
		if err != nil {
			RespondError(c, "invalid from (use YYYY-MM-DD)", http.StatusBadRequest)
			return time.Time{}, time.Time{}, false
		}
	}
	if toStr != "" {
		to, err = time.ParseInLocation("2006-01-02", toStr, time.Local)
		if err != nil {
			RespondError(c, "invalid to (use YYYY-MM-DD)", http.StatusBadRequest)
			return time.Time{}, time.Time{}, false
		}
	}
	if from.After(to) {
		RespondError(c, "from must not be after to", http.StatusBadRequest)
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func fillDailySeries(from time.Time, to time.Time, rows []messagesPerDayRow) []messagesPerDayRow {
	m := map[string]int64{}
	for _, r := range rows {
		if r.Day == "" {
			continue
		}
		m[r.Day] = r.Count
	}

	var out []messagesPerDayRow
	cur := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.Local)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.Local)
	for !cur.After(end) {
		key := cur.Format("2006-01-02")
		out = append(out, messagesPerDayRow{Day: key, Count: m[key]})
		cur = cur.AddDate(0, 0, 1)
	}
	return out
}
