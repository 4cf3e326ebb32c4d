package models

import "time"

/************************************************
/**** MARK: PLATFORMS ****/
/************************************************/
const PLATFORM_FACEBOOK = "facebook"
const PLATFORM_INSTAGRAM = "instagram"

func IsPlatformValid(platform string) bool {
	return platform == PLATFORM_FACEBOOK || platform == PLATFORM_INSTAGRAM
}

// Conversation representa o thread de um participante com um usuário em uma plataforma.
// (user_id, platform, external_id) é único: eventos repetidos resolvem sempre a mesma linha.
type Conversation struct {
	ID              string     `gorm:"primary_key" json:"id"`
	UserID          int64      `gorm:"not null;index;unique_index:idx_conversation_key" json:"user_id"`
	Platform        string     `gorm:"not null;unique_index:idx_conversation_key" json:"platform"`
	ExternalID      string     `gorm:"not null;unique_index:idx_conversation_key" json:"external_id"`
	ParticipantID   string     `gorm:"not null" json:"participant_id"`
	ParticipantName string     `gorm:"default:''" json:"participant_name"`
	LastMessageAt   *time.Time `gorm:"index" json:"last_message_at"`
	CreatedAt       *time.Time `json:"created_at"`
	UpdatedAt       *time.Time `json:"updated_at"`
}
