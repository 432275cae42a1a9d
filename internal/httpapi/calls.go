package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"voice-agent-platform/internal/calls"
	"voice-agent-platform/internal/reporting"

	"github.com/gin-gonic/gin"
)

func (h Handlers) ScheduleCall(c *gin.Context) {
	var req calls.ScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	call, err := h.Calls.Schedule(c.Request.Context(), accountID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

// ListCalls supports ?status=a,b&voice_agent_id=&from=&to=&limit= and
// ?view=board to split rows into upcoming and past.
func (h Handlers) ListCalls(c *gin.Context) {
	f := calls.Filter{AccountID: accountID(c), VoiceAgentID: c.Query("voice_agent_id")}
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			st := calls.Status(strings.TrimSpace(s))
			if !st.Valid() {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
				return
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	var ok bool
	if f.From, ok = queryTime(c, "from"); !ok {
		return
	}
	if f.To, ok = queryTime(c, "to"); !ok {
		return
	}
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		f.Limit = n
	}

	rows, err := h.Calls.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	if c.Query("view") == "board" {
		upcoming, past := reporting.Board(rows, h.now())
		c.JSON(http.StatusOK, gin.H{"upcoming": upcoming, "past": past})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": rows})
}

// queryTime parses an optional RFC3339 parameter; absent yields the zero time.
func queryTime(c *gin.Context, key string) (time.Time, bool) {
	raw := c.Query(key)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC3339"})
		return time.Time{}, false
	}
	return t, true
}

func (h Handlers) GetCall(c *gin.Context) {
	call, err := h.Calls.Get(c.Request.Context(), accountID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) EditCall(c *gin.Context) {
	var req calls.EditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	call, err := h.Calls.Edit(c.Request.Context(), accountID(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

type noteRequest struct {
	Note string `json:"note"`
}

func (h Handlers) AddCallNote(c *gin.Context) {
	var req noteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	call, err := h.Calls.AppendNote(c.Request.Context(), accountID(c), c.Param("id"), req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) CancelCall(c *gin.Context) {
	call, err := h.Calls.Cancel(c.Request.Context(), accountID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

// StartCall begins the conversation and returns once the call is in progress.
func (h Handlers) StartCall(c *gin.Context) {
	call, err := h.Calls.Get(c.Request.Context(), accountID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	started, err := h.Orchestrator.StartCallAsync(c.Request.Context(), call)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, started)
}

func (h Handlers) StopCall(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Calls.Get(c.Request.Context(), accountID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": id, "stopped": h.Orchestrator.StopCall(id)})
}

func (h Handlers) CallActive(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Calls.Get(c.Request.Context(), accountID(c), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"call_id": id, "active": h.Orchestrator.IsCallActive(id)})
}

func (h Handlers) CallTrail(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.Calls.Get(c.Request.Context(), accountID(c), id); err != nil {
		writeError(c, err)
		return
	}
	events, err := h.Audit.CallTrail(c.Request.Context(), accountID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// --- Reporting ---

// Stats accepts ?tz=<IANA name> to define "today".
func (h Handlers) Stats(c *gin.Context) {
	req := reporting.StatsRequest{AccountID: accountID(c)}
	if tz := c.Query("tz"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid tz"})
			return
		}
		req.Location = loc
	}
	stats, err := h.Reporting.Stats(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h Handlers) CallsSummary(c *gin.Context) {
	from, ok := queryTime(c, "from")
	if !ok {
		return
	}
	to, ok := queryTime(c, "to")
	if !ok {
		return
	}
	if from.IsZero() || to.IsZero() {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "from and to required"})
		return
	}
	sum, err := h.Reporting.CallsSummary(c.Request.Context(), reporting.CallsSummaryRequest{
		AccountID:    accountID(c),
		Range:        reporting.TimeRange{From: from, To: to},
		VoiceAgentID: c.Query("voice_agent_id"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}
