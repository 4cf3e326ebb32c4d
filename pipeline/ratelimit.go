package pipeline

import (
	"errors"
	"time"

	"chatrelay/models"

	"github.com/jinzhu/gorm"
)

// ErrRateLimited marks a denial so the orchestrator can report it as its own
// failure reason (distinct from store errors).
var ErrRateLimited = errors.New("daily rate limit exceeded")

// rateWindow is the fixed budget window, counted from the check that opens it.
const rateWindow = 24 * time.Hour

// RateLimiter enforces a daily call budget per (user, provider, endpoint).
// The check-and-increment runs as a single guarded UPDATE at the store, never
// as read-then-write in the caller: two concurrent requests at limit-1 must
// admit exactly one.
type RateLimiter struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRateLimiter(db *gorm.DB) *RateLimiter {
	return &RateLimiter{db: db, now: time.Now}
}

// CheckAndConsume consumes one call from the window if the budget allows it.
// A missing row or an elapsed window counts as zero against a fresh window.
// Store errors propagate: the caller must fail the operation, not bypass the
// limit.
func (l *RateLimiter) CheckAndConsume(userID int64, provider, endpoint string, limit int64) (bool, error) {
	if limit <= 0 {
		return false, nil
	}
	now := l.now()

	ok, err := l.consumeFromActiveWindow(userID, provider, endpoint, limit, now)
	if err != nil || ok {
		return ok, err
	}

	// No active-window row took the increment: the row is missing, expired,
	// or exhausted. Only a read tells which.
	var row models.RateLimit
	err = l.db.Where("user_id = ? AND provider = ? AND endpoint = ?", userID, provider, endpoint).
		First(&row).Error
	if err != nil {
		if !gorm.IsRecordNotFoundError(err) {
			return false, err
		}
		resets := now.Add(rateWindow)
		row = models.RateLimit{
			UserID:    userID,
			Provider:  provider,
			Endpoint:  endpoint,
			CallsMade: 1,
			ResetsAt:  &resets,
		}
		if cerr := l.db.Create(&row).Error; cerr != nil {
			// lost an insert race on the unique index; the winner's window is
			// active now, take the normal path
			return l.consumeFromActiveWindow(userID, provider, endpoint, limit, now)
		}
		return true, nil
	}

	if row.ResetsAt != nil && row.ResetsAt.After(now) {
		// window still open and the guarded update did not fire: exhausted
		return false, nil
	}

	// window elapsed: restart it with this call counted. Guarding on the old
	// resets_at keeps two racers from both resetting.
	resets := now.Add(rateWindow)
	res := l.db.Model(&models.RateLimit{}).
		Where("id = ? AND (resets_at IS NULL OR resets_at <= ?)", row.ID, now).
		Updates(map[string]interface{}{"calls_made": 1, "resets_at": &resets})
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}
	return l.consumeFromActiveWindow(userID, provider, endpoint, limit, now)
}

func (l *RateLimiter) consumeFromActiveWindow(userID int64, provider, endpoint string, limit int64, now time.Time) (bool, error) {
	res := l.db.Model(&models.RateLimit{}).
		Where("user_id = ? AND provider = ? AND endpoint = ?", userID, provider, endpoint).
		Where("resets_at > ? AND calls_made < ?", now, limit).
		Update("calls_made", gorm.Expr("calls_made + 1"))
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Track records a confirmed dispatched call after the fact, with no gating.
// It feeds the same counter table so the usage dashboard sees ungated
// endpoints (e.g. platform sends) next to the gated ones.
func (l *RateLimiter) Track(userID int64, provider, endpoint string) error {
	now := l.now()

	res := l.db.Model(&models.RateLimit{}).
		Where("user_id = ? AND provider = ? AND endpoint = ?", userID, provider, endpoint).
		Where("resets_at > ?", now).
		Update("calls_made", gorm.Expr("calls_made + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var row models.RateLimit
	err := l.db.Where("user_id = ? AND provider = ? AND endpoint = ?", userID, provider, endpoint).
		First(&row).Error
	if err != nil {
		if !gorm.IsRecordNotFoundError(err) {
			return err
		}
		resets := now.Add(rateWindow)
		row = models.RateLimit{
			UserID:    userID,
			Provider:  provider,
			Endpoint:  endpoint,
			CallsMade: 1,
			ResetsAt:  &resets,
		}
		return l.db.Create(&row).Error
	}

	// Restart the elapsed window, guarded on the old resets_at like
	// CheckAndConsume: only one racer may zero the counter.
	resets := now.Add(rateWindow)
	res = l.db.Model(&models.RateLimit{}).
		Where("id = ? AND (resets_at IS NULL OR resets_at <= ?)", row.ID, now).
		Updates(map[string]interface{}{"calls_made": 1, "resets_at": &resets})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// lost the restart race: someone else opened a fresh window, count into it
	return l.db.Model(&models.RateLimit{}).
		Where("id = ? AND resets_at > ?", row.ID, now).
		Update("calls_made", gorm.Expr("calls_made + 1")).Error
}
