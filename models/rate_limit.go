package models

import "time"

/************************************************
/**** MARK: RATE LIMIT PROVIDERS/ENDPOINTS ****/
/************************************************/
const RATE_PROVIDER_VOICEFLOW = "voiceflow"
const RATE_ENDPOINT_INTERACT = "interact"
const RATE_PROVIDER_META = "meta"
const RATE_ENDPOINT_SEND = "send"

// RateLimit guarda o consumo de uma janela diária por (user, provider, endpoint).
// calls_made volta a zero quando now >= resets_at. O incremento acontece num
// único UPDATE no banco (nunca read-then-write no caller).
type RateLimit struct {
	ID        int64      `gorm:"primary_key;AUTO_INCREMENT" json:"id"`
	UserID    int64      `gorm:"not null;unique_index:idx_rate_limit_key" json:"user_id"`
	Provider  string     `gorm:"not null;unique_index:idx_rate_limit_key" json:"provider"`
	Endpoint  string     `gorm:"not null;unique_index:idx_rate_limit_key" json:"endpoint"`
	CallsMade int64      `gorm:"not null;default:0" json:"calls_made"`
	ResetsAt  *time.Time `gorm:"index" json:"resets_at"`
	CreatedAt *time.Time `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
}
