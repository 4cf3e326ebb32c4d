package controllers

import (
	"net/http"
	"strings"

	dbpkg "chatrelay/db"
	"chatrelay/models"
	"chatrelay/pipeline"
	"chatrelay/tools"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

type upsertVoiceflowConfigReq struct {
	UserID    int64  `json:"user_id"`
	ProjectID string `json:"project_id"`
	VersionID string `json:"version_id"`
	ApiKey    string `json:"api_key"`
}

// PUT /api/voiceflow/config
// Upsert the tenant Voiceflow mapping. A fresh verify token is generated when
// the row has none, and the resolver cache is invalidated so the pipeline
// picks the new credentials up immediately.
func UpsertVoiceflowConfig(c *gin.Context) {
	var req upsertVoiceflowConfigReq
	if err := c.Bind(&req); err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	req.ProjectID = strings.TrimSpace(req.ProjectID)
	req.VersionID = strings.TrimSpace(req.VersionID)
	req.ApiKey = strings.TrimSpace(req.ApiKey)
	if req.VersionID == "" {
		req.VersionID = "production"
	}

	if req.UserID <= 0 {
		RespondError(c, "user_id is required", http.StatusBadRequest)
		return
	}
	if req.ProjectID == "" {
		RespondError(c, "project_id is required", http.StatusBadRequest)
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	defer func() {
		if proc := pipeline.FromContext(c); proc != nil {
			proc.Configs.Invalidate(req.UserID)
		}
	}()

	var vf models.VoiceflowConfig
	err := db.Where("user_id = ?", req.UserID).First(&vf).Error
	if err != nil {
		if gorm.IsRecordNotFoundError(err) {
			vf = models.VoiceflowConfig{
				UserID:      req.UserID,
				ProjectID:   req.ProjectID,
				VersionID:   req.VersionID,
				ApiKey:      req.ApiKey,
				VerifyToken: tools.RandomString(32),
				Status:      models.VOICEFLOW_STATUS_ACTIVE,
			}
			if err := db.Create(&vf).Error; err != nil {
				RespondError(c, err.Error(), http.StatusBadRequest)
				return
			}
			RespondSuccess(c, gin.H{"verify_token": vf.VerifyToken})
			return
		}
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	verifyToken := strings.TrimSpace(vf.VerifyToken)
	if verifyToken == "" {
		verifyToken = tools.RandomString(32)
	}

	if err := db.Model(&models.VoiceflowConfig{}).
		Where("id = ?", vf.ID).
		Updates(map[string]interface{}{
			"project_id":   req.ProjectID,
			"version_id":   req.VersionID,
			"api_key":      req.ApiKey,
			"verify_token": verifyToken,
			"status":       models.VOICEFLOW_STATUS_ACTIVE,
		}).Error; err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	RespondSuccess(c, gin.H{"verify_token": verifyToken})
}
