package controllers

import (
	"net/http"
	"strings"
	"time"

	dbpkg "chatrelay/db"
	"chatrelay/models"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

type upsertConnectionReq struct {
	UserID      int64      `json:"user_id"`
	PageID      string     `json:"page_id"`
	AccountID   string     `json:"account_id"`
	AccessToken string     `json:"access_token"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

// PUT /api/connections/:platform
// Upsert the tenant credential for one Meta surface. Facebook rows need a
// page_id, Instagram rows an account_id. The OAuth exchange that produces the
// token happens in the console; this endpoint just stores the result.
func UpsertSocialConnection(c *gin.Context) {
	platform := strings.ToLower(strings.TrimSpace(c.Param("platform")))
	if !models.IsPlatformValid(platform) {
		RespondError(c, "invalid platform (use facebook or instagram)", http.StatusBadRequest)
		return
	}

	var req upsertConnectionReq
	if err := c.Bind(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	req.PageID = strings.TrimSpace(req.PageID)
	req.AccountID = strings.TrimSpace(req.AccountID)
	req.AccessToken = strings.TrimSpace(req.AccessToken)

	if req.UserID <= 0 {
		RespondError(c, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.AccessToken == "" {
		RespondError(c, "access_token is required", http.StatusBadRequest)
		return
	}
	if platform == models.PLATFORM_FACEBOOK && req.PageID == "" {
		RespondError(c, "page_id is required for facebook", http.StatusBadRequest)
		return
	}
	if platform == models.PLATFORM_INSTAGRAM && req.AccountID == "" {
		RespondError(c, "account_id is required for instagram", http.StatusBadRequest)
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	var conn models.SocialConnection
	err := db.Where("user_id = ? AND platform = ?", req.UserID, platform).First(&conn).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			conn = models.SocialConnection{
				UserID:      req.UserID,
				Platform:    platform,
				PageID:      req.PageID,
				AccountID:   req.AccountID,
				AccessToken: req.AccessToken,
				ExpiresAt:   req.ExpiresAt,
			}
			if err := db.Create(&conn).Error; err != nil {
				RespondError(c, err.Error(), http.StatusBadRequest)
				return
			}
			RespondSuccess(c, true)
			return
		}
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	if err := db.Model(&models.SocialConnection{}).
		Where("id = ?", conn.ID).
		Updates(map[string]interface{}{
			"page_id":      req.PageID,
			"account_id":   req.AccountID,
			"access_token": req.AccessToken,
			"expires_at":   req.ExpiresAt,
		}).Error; err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	RespondSuccess(c, true)
}
