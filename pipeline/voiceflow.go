package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatrelay/models"
)

// FALLBACK_REPLY is what the end user gets when the engine is unreachable
// after retries. Availability over error surfacing: the user always receives
// a reply.
const FALLBACK_REPLY = "Sorry, I'm having trouble answering right now. Please try again in a moment."

const (
	voiceflowBaseURL = "https://general-runtime.voiceflow.com"

	// The request context is cancelled one second before the transport
	// deadline so the abort is ours and the error is attributable, not a raw
	// connection reset.
	voiceflowTimeout = 12 * time.Second
	abortMargin      = 1 * time.Second

	// 1 call + 2 immediate retries
	voiceflowAttempts = 3
)

// VoiceflowClient turns user text into reply text via the Voiceflow runtime.
type VoiceflowClient struct {
	BaseURL  string
	HTTP     *http.Client
	Reporter Reporter
}

func NewVoiceflowClient(baseURL string, reporter Reporter) *VoiceflowClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = voiceflowBaseURL
	}
	return &VoiceflowClient{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		HTTP:     &http.Client{Timeout: voiceflowTimeout},
		Reporter: reporter,
	}
}

// interactRequest carries the platform and participant identity alongside the
// raw text so the flow can branch on them.
type interactRequest struct {
	Action struct {
		Type    string `json:"type"`
		Payload string `json:"payload"`
	} `json:"action"`
	Config struct {
		TTS       bool `json:"tts"`
		StripSSML bool `json:"stripSSML"`
	} `json:"config"`
	Metadata struct {
		Platform        string `json:"platform"`
		ParticipantID   string `json:"participant_id"`
		ParticipantName string `json:"participant_name,omitempty"`
	} `json:"metadata"`
}

type interactTrace struct {
	Type    string `json:"type"`
	Payload struct {
		Message string `json:"message"`
	} `json:"payload"`
}

// GenerateReply calls the engine with up to voiceflowAttempts fresh attempts
// (no backoff) and joins the text traces with a blank line. When every
// attempt fails the last error goes to the Reporter and the fixed fallback is
// returned as a successful result, flagged by fellBack.
func (c *VoiceflowClient) GenerateReply(ctx context.Context, cfg *ResolvedConfig, conv *models.Conversation, userText string) (reply string, fellBack bool) {
	var lastErr error
	for attempt := 1; attempt <= voiceflowAttempts; attempt++ {
		reply, err := c.interact(ctx, cfg, conv, userText)
		if err == nil {
			return reply, false
		}
		lastErr = err
	}

	c.Reporter.ReportError(lastErr, map[string]string{
		"component":       "voiceflow",
		"conversation_id": conv.ID,
		"user_id":         strconv.FormatInt(cfg.UserID, 10),
		"attempts":        strconv.Itoa(voiceflowAttempts),
	})
	return FALLBACK_REPLY, true
}

func (c *VoiceflowClient) interact(ctx context.Context, cfg *ResolvedConfig, conv *models.Conversation, userText string) (string, error) {
	var body interactRequest
	body.Action.Type = "text"
	body.Action.Payload = userText
	body.Config.TTS = false
	body.Config.StripSSML = true
	body.Metadata.Platform = conv.Platform
	body.Metadata.ParticipantID = conv.ParticipantID
	body.Metadata.ParticipantName = conv.ParticipantName

	b, err := json.Marshal(body)
	if err != nil {
		return "", err
	}

	// conversation id doubles as the runtime session id, keeping engine state
	// pinned to our thread
	url := fmt.Sprintf("%s/state/%s/user/%s/interact", c.BaseURL, cfg.ProjectID, conv.ID)

	ctx, cancel := context.WithTimeout(ctx, voiceflowTimeout-abortMargin)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.ApiKey != "" {
		req.Header.Set("Authorization", cfg.ApiKey)
	}
	if cfg.VersionID != "" {
		req.Header.Set("versionID", cfg.VersionID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("voiceflow error %d: %s", resp.StatusCode, string(raw))
	}

	var traces []interactTrace
	if err := json.NewDecoder(resp.Body).Decode(&traces); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, t := range traces {
		if t.Type != "text" {
			continue
		}
		msg := strings.TrimSpace(t.Payload.Message)
		if msg == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(msg)
	}

	out := sb.String()
	if out == "" {
		return "", fmt.Errorf("no valid response from voiceflow (no text traces)")
	}
	return out, nil
}
