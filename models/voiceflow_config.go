package models

import "time"

const (
	VOICEFLOW_STATUS_PENDING = "pending"
	VOICEFLOW_STATUS_ACTIVE  = "active"
)

// VoiceflowConfig stores the tenant mapping to the Voiceflow project.
// One row per user (multi-tenant). ApiKey is optional: the pipeline can run
// against a project that only needs the shared key from the environment.
type VoiceflowConfig struct {
	ID          int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	UserID      int64      `gorm:"not null;unique_index" json:"user_id"`
	ProjectID   string     `gorm:"column:project_id;not null" json:"project_id"`
	VersionID   string     `gorm:"column:version_id;not null;default:'production'" json:"version_id"`
	ApiKey      string     `gorm:"column:api_key;default:''" json:"api_key"`
	VerifyToken string     `gorm:"column:verify_token;default:''" json:"verify_token"`
	Status      string     `gorm:"column:status;not null;default:'pending'" json:"status"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}
