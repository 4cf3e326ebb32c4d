package models

import "time"

/************************************************
/**** MARK: MESSAGE SENDERS ****/
/************************************************/
const MESSAGE_SENDER_USER = "user"
const MESSAGE_SENDER_ASSISTANT = "assistant"

// Message é um turno de uma conversa. Append-only: a mensagem do usuário e a
// resposta do assistente são duas linhas separadas, gravadas em sequência.
type Message struct {
	ID             string     `gorm:"primary_key" json:"id"`
	ConversationID string     `gorm:"not null;index" json:"conversation_id"`
	Content        string     `gorm:"type:text;not null" json:"content"`
	Sender         string     `gorm:"not null;index" json:"sender"`
	ExternalID     string     `gorm:"default:''" json:"external_id"` // id da plataforma (mid), para dedup/auditoria
	SentAt         *time.Time `gorm:"index" json:"sent_at"`
	CreatedAt      *time.Time `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at"`
}
