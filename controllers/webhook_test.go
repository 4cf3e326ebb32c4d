package controllers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dbpkg "chatrelay/db"
	"chatrelay/models"
	"chatrelay/pipeline"

	"github.com/gin-gonic/gin"
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.DB().SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Conversation{},
		&models.Message{},
		&models.RateLimit{},
		&models.VoiceflowConfig{},
		&models.SocialConnection{},
	).Error)

	t.Cleanup(func() { _ = db.Close() })
	return db
}

// setupWebhookRouter wires the webhook routes over a seeded tenant and a
// pipeline pointed at stub Voiceflow/Graph servers.
func setupWebhookRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := openTestDB(t)
	require.NoError(t, db.Create(&models.User{
		Name:   "Owner",
		Email:  "owner@example.com",
		Status: models.USER_STATUS_AVAILABLE,
	}).Error)
	require.NoError(t, db.Create(&models.VoiceflowConfig{
		UserID:      1,
		ProjectID:   "proj-1",
		VerifyToken: "verify-tok",
		Status:      models.VOICEFLOW_STATUS_ACTIVE,
	}).Error)
	require.NoError(t, db.Create(&models.SocialConnection{
		UserID:      1,
		Platform:    models.PLATFORM_FACEBOOK,
		PageID:      "page-1",
		AccessToken: "tok-1",
	}).Error)

	engine := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"type":"text","payload":{"message":"Hello there!"}}]`)
	}))
	t.Cleanup(engine.Close)
	graph := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(graph.Close)

	reporter := pipeline.LogReporter{}
	processor := pipeline.NewProcessor(db,
		pipeline.NewVoiceflowClient(engine.URL, reporter),
		pipeline.NewMetaSender(db, graph.URL, reporter),
		reporter, 10)

	r := gin.New()
	r.Use(dbpkg.SetDBtoContext(db))
	r.Use(pipeline.SetToContext(processor))
	api := r.Group("/api")
	api.GET("/webhook/:userId", WebhookVerify)
	api.POST("/webhook/:userId", WebhookUpdate)
	return r, db
}

func signBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestWebhookVerifyEchoesChallenge(t *testing.T) {
	r, _ := setupWebhookRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/webhook/1?hub.mode=subscribe&hub.verify_token=verify-tok&hub.challenge=challenge-123", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "challenge-123", w.Body.String())
}

func TestWebhookVerifyRejectsWrongToken(t *testing.T) {
	r, _ := setupWebhookRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/api/webhook/1?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=abc", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestWebhookUpdateProcessesMessage(t *testing.T) {
	t.Setenv("WEBHOOK_APP_SECRET", "s3cret")
	r, db := setupWebhookRouter(t)

	body := []byte(`{
		"object": "page",
		"entry": [{
			"id": "page-1",
			"messaging": [{
				"sender": {"id": "123"},
				"recipient": {"id": "page-1"},
				"message": {"mid": "mid.1", "text": "hello"}
			}]
		}]
	}`)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/1", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hub-Signature-256", signBody("s3cret", body))
	r.ServeHTTP(w, req)

	// the handler acknowledges before the pipeline finishes
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "EVENT_RECEIVED", w.Body.String())

	require.Eventually(t, func() bool {
		var count int64
		if err := db.Model(&models.Message{}).Count(&count).Error; err != nil {
			return false
		}
		return count == 2
	}, 3*time.Second, 20*time.Millisecond, "expected user + assistant messages persisted")

	var conv models.Conversation
	require.NoError(t, db.Where("user_id = ? AND platform = ? AND external_id = ?",
		1, models.PLATFORM_FACEBOOK, "123").First(&conv).Error)
}

func TestWebhookUpdateRejectsTamperedBody(t *testing.T) {
	t.Setenv("WEBHOOK_APP_SECRET", "s3cret")
	r, db := setupWebhookRouter(t)

	body := []byte(`{"object":"page","entry":[]}`)
	sig := signBody("s3cret", body)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/1",
		strings.NewReader(`{"object":"page","entry":[{"id":"x"}]}`))
	req.Header.Set("X-Hub-Signature-256", sig)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)

	var count int64
	require.NoError(t, db.Model(&models.Message{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestWebhookUpdateRejectsInactiveUser(t *testing.T) {
	t.Setenv("WEBHOOK_APP_SECRET", "s3cret")
	r, db := setupWebhookRouter(t)
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", 1).
		Update("status", models.USER_STATUS_BLOCKED).Error)

	body := []byte(`{"object":"page","entry":[]}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/webhook/1", strings.NewReader(string(body)))
	req.Header.Set("X-Hub-Signature-256", signBody("s3cret", body))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestExtractTextMessages(t *testing.T) {
	payload := WebhookPayload{
		Object: "instagram",
		Entry: []WebhookEntry{{
			ID: "acct-1",
			Messaging: []WebhookMessaging{
				{
					Sender:  WebhookParty{ID: "900"},
					Message: WebhookMessage{MID: "mid.a", Text: "oi"},
				},
				{
					// our own echo
					Sender:  WebhookParty{ID: "page"},
					Message: WebhookMessage{Text: "echoed", IsEcho: true},
				},
				{
					// attachment-only event
					Sender: WebhookParty{ID: "901"},
				},
			},
		}},
	}

	msgs := extractTextMessages(5, payload)
	require.Len(t, msgs, 1)
	require.Equal(t, int64(5), msgs[0].UserID)
	require.Equal(t, models.PLATFORM_INSTAGRAM, msgs[0].Platform)
	require.Equal(t, "900", msgs[0].ExternalID)
	require.Equal(t, "900", msgs[0].ParticipantID)
	require.Equal(t, "mid.a", msgs[0].MessageID)
	require.Equal(t, "oi", msgs[0].Text)
}
