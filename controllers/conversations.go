package controllers

import (
	"net/http"
	"strconv"
	"strings"

	dbpkg "chatrelay/db"
	"chatrelay/models"

	"github.com/gin-gonic/gin"
)

// userIDQuery reads the explicit user identity from ?user_id=. Identity is
// established by the external auth layer; the console forwards it as-is.
func userIDQuery(c *gin.Context) (int64, bool) {
	v := strings.TrimSpace(c.Query("user_id"))
	if v == "" {
		RespondError(c, "user_id is required", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id <= 0 {
		RespondError(c, "invalid user_id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

// GET /api/conversations?user_id=&limit=
// Recent conversations, newest activity first.
func GetConversations(c *gin.Context) {
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	limit := clampInt(queryInt(c, "limit", 100), 1, 500)

	var conversations []models.Conversation
	if err := db.Where("user_id = ?", userID).
		Order("last_message_at desc").
		Limit(limit).
		Find(&conversations).Error; err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	RespondSuccess(c, gin.H{"conversations": conversations})
}

// GET /api/conversations/:id/messages?user_id=
// Messages of one conversation, oldest first.
func GetConversationMessages(c *gin.Context) {
	userID, ok := userIDQuery(c)
	if !ok {
		return
	}

	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		RespondError(c, "id is required", http.StatusBadRequest)
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	var conv models.Conversation
	if err := db.Where("id = ? AND user_id = ?", id, userID).First(&conv).Error; err != nil {
		RespondError(c, "conversation not found", http.StatusNotFound)
		return
	}

	var messages []models.Message
	if err := db.Where("conversation_id = ?", conv.ID).
		Order("sent_at asc, created_at asc").
		Find(&messages).Error; err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	RespondSuccess(c, gin.H{"conversation": conv, "messages": messages})
}
