package models

import "time"

// SocialConnection stores the tenant credential for one Meta surface.
// Facebook connections are keyed by page id, Instagram by account id.
// The pipeline only reads these rows; the OAuth flow that writes them lives
// in the console.
type SocialConnection struct {
	ID          int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	UserID      int64      `gorm:"not null;unique_index:idx_social_connection_key" json:"user_id"`
	Platform    string     `gorm:"not null;unique_index:idx_social_connection_key" json:"platform"`
	PageID      string     `gorm:"column:page_id;default:''" json:"page_id"`
	AccountID   string     `gorm:"column:account_id;default:''" json:"account_id"`
	AccessToken string     `gorm:"column:access_token;not null" json:"access_token"`
	ExpiresAt   *time.Time `json:"expires_at"`
	CreatedAt   *time.Time `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

// SendTargetID returns the Graph API node the send call is issued against.
func (s SocialConnection) SendTargetID() string {
	if s.Platform == PLATFORM_INSTAGRAM {
		return s.AccountID
	}
	return s.PageID
}
