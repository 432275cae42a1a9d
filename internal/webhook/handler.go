package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"voice-agent-platform/internal/audit"
	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/events"
	"voice-agent-platform/internal/voices"
	"voice-agent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

const maxBodyBytes = 64 << 10

// VoiceResolver looks up the agent named in the request path.
type VoiceResolver interface {
	Resolve(ctx context.Context, id string) (voices.VoiceProfile, error)
}

// Scheduler materializes an authenticated request as a scheduled call.
type Scheduler interface {
	ScheduleInbound(ctx context.Context, req calls.InboundRequest) (calls.Call, error)
}

type AuditAppender interface {
	Append(ctx context.Context, e audit.Event) error
}

// Payload is the JSON body accepted from external workflows.
type Payload struct {
	ContactName     string          `json:"contactName"`
	PhoneNumber     string          `json:"phoneNumber"`
	PropertyAddress string          `json:"propertyAddress"`
	CallbackURL     string          `json:"callbackUrl,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
}

// Response is the envelope every gateway answer uses.
type Response struct {
	Success   bool       `json:"success"`
	CallID    string     `json:"callId,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	Error     string     `json:"error,omitempty"`
	Message   string     `json:"message"`
}

// Handler is the inbound scheduling gateway.
//
// Checks run in a fixed order and the first failure answers the request:
// signature header, voice id, agent secret, HMAC, body, rate limit, replay.
type Handler struct {
	Voices    VoiceResolver
	Scheduler Scheduler
	Guard     Guard
	Notifier  *Notifier
	Events    events.Publisher
	Audit     AuditAppender
}

func fail(c *gin.Context, status int, errMsg, msg string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: errMsg, Message: msg})
}

func (h Handler) ScheduleCall(c *gin.Context) {
	log := logger.FromGin(c)
	ctx := c.Request.Context()

	signature := strings.TrimSpace(c.GetHeader(HeaderSignature))
	if signature == "" {
		fail(c, http.StatusUnauthorized, "Missing webhook signature", "Unauthorized request")
		return
	}

	voiceID := strings.TrimSpace(c.Param("voiceId"))
	if voiceID == "" {
		fail(c, http.StatusBadRequest, "Missing voice agent ID", "Voice agent ID is required")
		return
	}

	voice, err := h.Voices.Resolve(ctx, voiceID)
	if err != nil && !errors.Is(err, voices.ErrNotFound) {
		log.Error("webhook voice lookup failed", "voice_agent_id", voiceID, "err", err)
		fail(c, http.StatusInternalServerError, "Internal server error", "Failed to process webhook")
		return
	}
	if err != nil || voice.WebhookSecret == "" {
		fail(c, http.StatusUnauthorized, "Invalid voice agent or missing webhook secret", "Unauthorized request")
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyBytes+1))
	if err != nil || len(body) > maxBodyBytes {
		fail(c, http.StatusBadRequest, "Invalid request body", "Request body could not be read")
		return
	}
	if !Verify(voice.WebhookSecret, body, signature) {
		log.Warn("webhook signature mismatch", "voice_agent_id", voiceID)
		fail(c, http.StatusUnauthorized, "Invalid webhook signature", "Unauthorized request")
		return
	}

	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		fail(c, http.StatusBadRequest, "Invalid JSON payload", "Request body must be valid JSON")
		return
	}
	if msg := p.validate(); msg != "" {
		fail(c, http.StatusBadRequest, "Invalid payload", msg)
		return
	}

	claimed := false
	if h.Guard != nil {
		ok, err := h.Guard.Allow(ctx, voiceID)
		if err != nil {
			log.Error("webhook rate limit check failed", "voice_agent_id", voiceID, "err", err)
		} else if !ok {
			fail(c, http.StatusTooManyRequests, "Rate limit exceeded", "Too many requests for this voice agent")
			return
		}
		first, err := h.Guard.FirstSeen(ctx, signature)
		if err != nil {
			log.Error("webhook replay check failed", "voice_agent_id", voiceID, "err", err)
		} else if !first {
			fail(c, http.StatusConflict, "Duplicate request", "This request has already been processed")
			return
		}
		claimed = err == nil
	}

	call, err := h.Scheduler.ScheduleInbound(ctx, calls.InboundRequest{
		AccountID:       voice.AccountID,
		VoiceAgentID:    voice.ID,
		PhoneNumber:     p.PhoneNumber,
		ContactName:     p.ContactName,
		PropertyAddress: p.PropertyAddress,
		CallbackURL:     p.CallbackURL,
		Metadata:        p.Metadata,
	})
	if err != nil && claimed {
		if rerr := h.Guard.Release(ctx, signature); rerr != nil {
			log.Warn("webhook replay release failed", "voice_agent_id", voiceID, "err", rerr)
		}
	}
	if errors.Is(err, calls.ErrInvalidArgument) {
		fail(c, http.StatusBadRequest, "Invalid payload", err.Error())
		return
	}
	if err != nil {
		log.Error("webhook schedule failed", "voice_agent_id", voiceID, "err", err)
		fail(c, http.StatusInternalServerError, "Internal server error", "Failed to schedule call")
		return
	}

	log.Info("call scheduled by webhook", "call_id", call.ID, "account_id", call.AccountID, "voice_agent_id", voiceID)
	h.record(ctx, log, call, c.ClientIP())
	if h.Notifier != nil {
		h.Notifier.NotifyStatus(ctx, call)
	}

	start := call.StartTime
	c.JSON(http.StatusOK, Response{
		Success:   true,
		CallID:    call.ID,
		StartTime: &start,
		Message:   "Call scheduled successfully",
	})
}

func (h Handler) record(ctx context.Context, log *slog.Logger, call calls.Call, clientIP string) {
	if h.Events != nil {
		h.Events.Publish(ctx, events.Event{
			Type:      events.TypeCallScheduled,
			AccountID: call.AccountID,
			CallID:    call.ID,
			Status:    string(call.Status),
			Payload:   call,
		})
	}
	if h.Audit != nil {
		err := h.Audit.Append(ctx, audit.Event{
			AccountID:    call.AccountID,
			Type:         audit.EventTypeInboundSchedule,
			CallID:       call.ID,
			VoiceAgentID: call.VoiceAgentID,
			IPAddress:    clientIP,
			Message:      "call scheduled by inbound webhook",
		})
		if err != nil {
			log.Warn("webhook audit append failed", "call_id", call.ID, "err", err)
		}
	}
}

func (p Payload) validate() string {
	if strings.TrimSpace(p.ContactName) == "" || strings.TrimSpace(p.PhoneNumber) == "" {
		return "contactName and phoneNumber are required"
	}
	if p.CallbackURL != "" {
		u, err := url.Parse(p.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return "callbackUrl must be an absolute http(s) URL"
		}
	}
	return ""
}
