package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strconv"
	"strings"
	"time"

	"chatrelay/models"

	"github.com/jinzhu/gorm"
)

const (
	graphBaseURL = "https://graph.facebook.com/v20.0"
	sendTimeout  = 10 * time.Second
)

// MetaSender relays replies back through the Graph API send endpoint.
// Delivery is best-effort: the stored assistant message is the source of
// truth, so a failed send is reported and never retried or rolled back.
type MetaSender struct {
	db       *gorm.DB
	BaseURL  string
	HTTP     *http.Client
	Reporter Reporter
}

func NewMetaSender(db *gorm.DB, baseURL string, reporter Reporter) *MetaSender {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = graphBaseURL
	}
	return &MetaSender{
		db:       db,
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: sendTimeout},
		Reporter: reporter,
	}
}

type sendMessageReq struct {
	Recipient struct {
		ID string `json:"id"`
	} `json:"recipient"`
	Message struct {
		Text string `json:"text"`
	} `json:"message"`
	MessagingType string `json:"messaging_type"`
}

// Send looks up the owning user's connection for the conversation's platform
// and issues the Graph call. Missing connection fails fast; every failure
// path reports a delivery_failed event and returns false.
func (s *MetaSender) Send(ctx context.Context, conv *models.Conversation, text string) bool {
	report := func(err error) {
		s.Reporter.ReportError(err, map[string]string{
			"component":       "meta_sender",
			"event":           "delivery_failed",
			"conversation_id": conv.ID,
			"platform":        conv.Platform,
			"user_id":         strconv.FormatInt(conv.UserID, 10),
		})
	}

	var conn models.SocialConnection
	if err := s.db.Where("user_id = ? AND platform = ?", conv.UserID, conv.Platform).
		First(&conn).Error; err != nil {
		if gorm.IsRecordNotFoundError(err) {
			report(fmt.Errorf("no %s connection for user %d", conv.Platform, conv.UserID))
		} else {
			report(fmt.Errorf("load %s connection: %v", conv.Platform, err))
		}
		return false
	}

	target := strings.TrimSpace(conn.SendTargetID())
	if target == "" {
		report(fmt.Errorf("%s connection for user %d has no send target id", conv.Platform, conv.UserID))
		return false
	}

	var body sendMessageReq
	body.Recipient.ID = conv.ParticipantID
	body.Message.Text = text
	body.MessagingType = "RESPONSE"
	b, _ := json.Marshal(body)

	// Graph convention: the page/account token rides as a query parameter.
	url := fmt.Sprintf("%s/%s/messages?access_token=%s", s.BaseURL, target, neturl.QueryEscape(conn.AccessToken))

	ctx, cancel := context.WithTimeout(ctx, sendTimeout-abortMargin)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		report(err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.HTTP.Do(req)
	if err != nil {
		report(err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		report(fmt.Errorf("graph api error: status=%d body=%s", resp.StatusCode, string(raw)))
		return false
	}
	return true
}
