package controllers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	dbpkg "chatrelay/db"
	"chatrelay/models"
	"chatrelay/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
)

// WebhookPayload is the Messenger-style delivery for Facebook Pages and
// Instagram: object tells the surface apart, entry[].messaging[] carries the
// turns.
type WebhookPayload struct {
	Object string         `json:"object"` // "page" | "instagram"
	Entry  []WebhookEntry `json:"entry"`
}

type WebhookEntry struct {
	ID        string             `json:"id"`
	Time      int64              `json:"time"`
	Messaging []WebhookMessaging `json:"messaging"`
}

type WebhookMessaging struct {
	Sender    WebhookParty   `json:"sender"`
	Recipient WebhookParty   `json:"recipient"`
	Timestamp int64          `json:"timestamp"`
	Message   WebhookMessage `json:"message"`
}

type WebhookParty struct {
	ID string `json:"id"`
}

type WebhookMessage struct {
	MID    string `json:"mid"`
	Text   string `json:"text"`
	IsEcho bool   `json:"is_echo"`
}

func webhookPlatform(object string) string {
	if strings.EqualFold(strings.TrimSpace(object), "instagram") {
		return models.PLATFORM_INSTAGRAM
	}
	return models.PLATFORM_FACEBOOK
}

// extractTextMessages keeps only real inbound text turns: echoes of our own
// sends and attachment-only events are skipped.
func extractTextMessages(userID int64, payload WebhookPayload) []pipeline.InboundMessage {
	platform := webhookPlatform(payload.Object)

	var out []pipeline.InboundMessage
	for _, entry := range payload.Entry {
		for _, m := range entry.Messaging {
			if m.Message.IsEcho {
				continue
			}
			text := strings.TrimSpace(m.Message.Text)
			if text == "" {
				continue
			}
			sender := strings.TrimSpace(m.Sender.ID)
			if sender == "" {
				continue
			}
			out = append(out, pipeline.InboundMessage{
				UserID:        userID,
				Platform:      platform,
				ExternalID:    sender, // Messenger threads are keyed by the participant
				ParticipantID: sender,
				MessageID:     strings.TrimSpace(m.Message.MID),
				Text:          text,
			})
		}
	}
	return out
}

func resolveWebhookUserID(c *gin.Context) (int64, error) {
	// /webhook/:userId
	param := strings.TrimSpace(c.Param("userId"))
	if param != "" {
		return strconv.ParseInt(param, 10, 64)
	}

	// dev fallback, keeps a bare /webhook working locally
	def := strings.TrimSpace(os.Getenv("WEBHOOK_DEFAULT_USER_ID"))
	if def == "" {
		return 0, fmt.Errorf("missing userId param and WEBHOOK_DEFAULT_USER_ID not set")
	}
	return strconv.ParseInt(def, 10, 64)
}

// verifyMetaSignature validates the request body against Meta's signature
// header: X-Hub-Signature-256: sha256=<hex>, HMAC-SHA256 with the App Secret
// (NOT a page access token).
func verifyMetaSignature(c *gin.Context, rawBody []byte) (bool, string) {
	secret := strings.TrimSpace(os.Getenv("WEBHOOK_APP_SECRET"))
	if secret == "" {
		secret = strings.TrimSpace(os.Getenv("META_APP_SECRET"))
	}
	if secret == "" {
		return false, "missing WEBHOOK_APP_SECRET/META_APP_SECRET"
	}

	sig := strings.TrimSpace(c.GetHeader("X-Hub-Signature-256"))
	if sig == "" {
		// Meta also sends X-Hub-Signature (sha1), but we enforce sha256.
		return false, "missing X-Hub-Signature-256"
	}
	if !strings.HasPrefix(sig, "sha256=") {
		return false, "invalid X-Hub-Signature-256 format"
	}

	providedHex := strings.TrimPrefix(sig, "sha256=")
	provided, err := hex.DecodeString(providedHex)
	if err != nil {
		return false, "invalid signature hex"
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	expected := mac.Sum(nil)

	if !hmac.Equal(provided, expected) {
		return false, "signature mismatch"
	}

	return true, ""
}

func requireActiveUserByID(c *gin.Context, db *gorm.DB, userID int64) (*models.User, bool) {
	if userID <= 0 {
		RespondError(c, "invalid user_id", http.StatusBadRequest)
		return nil, false
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		RespondError(c, "user not found", http.StatusNotFound)
		return nil, false
	}

	if user.Status != models.USER_STATUS_AVAILABLE {
		RespondError(c, "user is not active", http.StatusForbidden)
		return nil, false
	}

	return &user, true
}

// GET /webhook and GET /webhook/:userId
// Meta subscription check: echo hub.challenge when the verify token matches.
// The token is per-user (VoiceflowConfig.VerifyToken) with an env fallback.
func WebhookVerify(c *gin.Context) {
	verifyToken := strings.TrimSpace(os.Getenv("WEBHOOK_VERIFY_TOKEN"))

	if userID, err := resolveWebhookUserID(c); err == nil {
		if db := dbpkg.DBInstance(c); db != nil {
			var vf models.VoiceflowConfig
			if err := db.Where("user_id = ?", userID).First(&vf).Error; err == nil {
				if t := strings.TrimSpace(vf.VerifyToken); t != "" {
					verifyToken = t
				}
			}
		}
	}

	if verifyToken == "" {
		RespondError(c, "no verify token configured", http.StatusInternalServerError)
		return
	}

	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == verifyToken && challenge != "" {
		c.String(http.StatusOK, "%s", challenge)
		return
	}

	RespondError(c, "forbidden", http.StatusForbidden)
}

// POST /webhook and POST /webhook/:userId
// Validates the signature, acknowledges immediately with EVENT_RECEIVED and
// runs the pipeline for each text message as its own task. Pipeline failures
// never reach Meta: a non-200 here only causes redelivery storms.
func WebhookUpdate(c *gin.Context) {
	userID, err := resolveWebhookUserID(c)
	if err != nil {
		RespondError(c, err.Error(), http.StatusBadRequest)
		return
	}

	db := dbpkg.DBInstance(c)
	if db == nil {
		RespondError(c, "db not configured in context", http.StatusInternalServerError)
		return
	}

	proc := pipeline.FromContext(c)
	if proc == nil {
		RespondError(c, "pipeline not configured in context", http.StatusInternalServerError)
		return
	}

	_, ok := requireActiveUserByID(c, db, userID)
	if !ok {
		return
	}

	// Read raw body once so we can validate Meta's signature.
	raw, err := c.GetRawData()
	if err != nil {
		RespondError(c, "failed to read body", http.StatusBadRequest)
		return
	}

	if ok, reason := verifyMetaSignature(c, raw); !ok {
		RespondError(c, "forbidden: "+reason, http.StatusForbidden)
		return
	}

	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		RespondError(c, "invalid json", http.StatusBadRequest)
		return
	}

	msgs := extractTextMessages(userID, payload)

	// answer Meta fast
	c.String(http.StatusOK, "EVENT_RECEIVED")

	for _, m := range msgs {
		go func(in pipeline.InboundMessage) {
			ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
			defer cancel()
			_ = proc.Process(ctx, in)
		}(m)
	}
}
