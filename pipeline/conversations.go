package pipeline

import (
	"fmt"
	"strings"
	"time"

	"chatrelay/models"

	"github.com/google/uuid"
	"github.com/jinzhu/gorm"
)

// ConversationStore resolves conversation threads and appends turns to them.
type ConversationStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{db: db, now: time.Now}
}

// FindOrCreate resolves the conversation for (userID, platform, externalID).
// An existing row gets last_message_at (and a changed participant name)
// refreshed. Two near-simultaneous events for a new external id may race the
// insert; the unique index is the backstop and the loser re-fetches the
// winner's row.
func (s *ConversationStore) FindOrCreate(userID int64, platform, externalID, participantID, participantName string) (*models.Conversation, error) {
	if !models.IsPlatformValid(platform) {
		return nil, fmt.Errorf("invalid platform %q", platform)
	}
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return nil, fmt.Errorf("empty external conversation id")
	}

	var conv models.Conversation
	err := s.db.Where("user_id = ? AND platform = ? AND external_id = ?", userID, platform, externalID).
		First(&conv).Error
	if err == nil {
		return s.touch(&conv, participantName)
	}
	if !gorm.IsRecordNotFoundError(err) {
		return nil, err
	}

	now := s.now()
	conv = models.Conversation{
		ID:              uuid.NewString(),
		UserID:          userID,
		Platform:        platform,
		ExternalID:      externalID,
		ParticipantID:   strings.TrimSpace(participantID),
		ParticipantName: strings.TrimSpace(participantName),
		LastMessageAt:   &now,
	}
	if cerr := s.db.Create(&conv).Error; cerr != nil {
		// unique index hit: someone else created it between lookup and insert
		var existing models.Conversation
		if ferr := s.db.Where("user_id = ? AND platform = ? AND external_id = ?", userID, platform, externalID).
			First(&existing).Error; ferr == nil {
			return s.touch(&existing, participantName)
		}
		return nil, cerr
	}
	return &conv, nil
}

func (s *ConversationStore) touch(conv *models.Conversation, participantName string) (*models.Conversation, error) {
	now := s.now()
	updates := map[string]interface{}{"last_message_at": &now}
	if name := strings.TrimSpace(participantName); name != "" && name != conv.ParticipantName {
		updates["participant_name"] = name
		conv.ParticipantName = name
	}
	if err := s.db.Model(&models.Conversation{}).Where("id = ?", conv.ID).Updates(updates).Error; err != nil {
		return nil, err
	}
	conv.LastMessageAt = &now
	return conv, nil
}

// AppendMessage writes one turn. It either fully succeeds or leaves nothing
// behind; callers treat the returned error as fatal for the current stage.
func (s *ConversationStore) AppendMessage(conversationID, content, sender, externalID string) (*models.Message, error) {
	if sender != models.MESSAGE_SENDER_USER && sender != models.MESSAGE_SENDER_ASSISTANT {
		return nil, fmt.Errorf("invalid message sender %q", sender)
	}
	now := s.now()
	msg := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Content:        content,
		Sender:         sender,
		ExternalID:     strings.TrimSpace(externalID),
		SentAt:         &now,
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *ConversationStore) GetConversation(id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.Where("id = ?", id).First(&conv).Error; err != nil {
		return nil, err
	}
	return &conv, nil
}
