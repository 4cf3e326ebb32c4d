package pipeline

import (
	"context"
	"log"
	"strconv"

	"chatrelay/models"

	"github.com/jinzhu/gorm"
)

// Stage tags reported with every failure so the sink can tell where an
// orchestration died.
const (
	stageConversationResolve = "conversation_resolve"
	stageUserMessageStore    = "user_message_store"
	stageRateCheck           = "rate_check"
	stageConfigResolve       = "config_resolve"
	stageAssistantStore      = "assistant_message_store"
)

// InboundMessage is one text message lifted out of a webhook delivery.
type InboundMessage struct {
	UserID          int64
	Platform        string
	ExternalID      string // platform conversation/thread id
	ParticipantID   string
	ParticipantName string
	MessageID       string // platform message id (mid), kept for audit
	Text            string
}

// Result is what a completed orchestration produced. Delivered=false with a
// non-nil Result is still overall success: success means "assistant message
// durably stored", not "platform accepted the send".
type Result struct {
	Conversation     *models.Conversation
	UserMessage      *models.Message
	AssistantMessage *models.Message
	Reply            string
	FellBack         bool
	Delivered        bool
}

// Processor runs the inbound pipeline for one webhook event:
//
//	Received -> ConversationResolved -> UserMessageStored -> RateChecked ->
//	ConfigResolved -> EngineReplyObtained -> AssistantMessageStored -> Delivered
//
// Any stage can drop to Failed; failures are reported and Process returns nil
// so the webhook handler still acknowledges receipt (a throwing handler would
// make Meta retry-storm the endpoint).
type Processor struct {
	Conversations *ConversationStore
	Limits        *RateLimiter
	Configs       *ConfigResolver
	Engine        *VoiceflowClient
	Sender        *MetaSender
	Reporter      Reporter

	// DailyLimit is the per-user engine call budget per rate window.
	DailyLimit int64
}

func NewProcessor(db *gorm.DB, engine *VoiceflowClient, sender *MetaSender, reporter Reporter, dailyLimit int64) *Processor {
	return &Processor{
		Conversations: NewConversationStore(db),
		Limits:        NewRateLimiter(db),
		Configs:       NewConfigResolver(db),
		Engine:        engine,
		Sender:        sender,
		Reporter:      reporter,
		DailyLimit:    dailyLimit,
	}
}

// Process drives one inbound message through the pipeline. Sub-operations run
// strictly in order; only the final platform delivery is allowed to fail
// without failing the orchestration.
func (p *Processor) Process(ctx context.Context, in InboundMessage) *Result {
	conv, err := p.Conversations.FindOrCreate(in.UserID, in.Platform, in.ExternalID, in.ParticipantID, in.ParticipantName)
	if err != nil {
		p.fail(stageConversationResolve, err, in)
		return nil
	}

	userMsg, err := p.Conversations.AppendMessage(conv.ID, in.Text, models.MESSAGE_SENDER_USER, in.MessageID)
	if err != nil {
		p.fail(stageUserMessageStore, err, in)
		return nil
	}

	// Fail-closed: a broken limiter store fails the operation instead of
	// silently bypassing the budget.
	allowed, err := p.Limits.CheckAndConsume(in.UserID, models.RATE_PROVIDER_VOICEFLOW, models.RATE_ENDPOINT_INTERACT, p.DailyLimit)
	if err != nil {
		p.fail(stageRateCheck, err, in)
		return nil
	}
	if !allowed {
		// the stored user message stays as the audit record of the rejected
		// request; no engine call, no reply
		p.fail(stageRateCheck, ErrRateLimited, in)
		return nil
	}

	cfg, err := p.Configs.Resolve(in.UserID)
	if err != nil {
		p.fail(stageConfigResolve, err, in)
		return nil
	}

	// practically always succeeds: retries and the fallback reply live inside
	reply, fellBack := p.Engine.GenerateReply(ctx, cfg, conv, in.Text)

	asstMsg, err := p.Conversations.AppendMessage(conv.ID, reply, models.MESSAGE_SENDER_ASSISTANT, "")
	if err != nil {
		p.fail(stageAssistantStore, err, in)
		return nil
	}

	delivered := p.Sender.Send(ctx, conv, reply)
	if delivered {
		if terr := p.Limits.Track(in.UserID, models.RATE_PROVIDER_META, models.RATE_ENDPOINT_SEND); terr != nil {
			log.Printf("pipeline: track send call: %v", terr)
		}
	}

	return &Result{
		Conversation:     conv,
		UserMessage:      userMsg,
		AssistantMessage: asstMsg,
		Reply:            reply,
		FellBack:         fellBack,
		Delivered:        delivered,
	}
}

func (p *Processor) fail(stage string, err error, in InboundMessage) {
	p.Reporter.ReportError(err, map[string]string{
		"stage":       stage,
		"platform":    in.Platform,
		"external_id": in.ExternalID,
		"message_id":  in.MessageID,
		"user_id":     strconv.FormatInt(in.UserID, 10),
	})
}
