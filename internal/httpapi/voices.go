package httpapi

import (
	"net/http"

	"voice-agent-platform/internal/voices"

	"github.com/gin-gonic/gin"
)

func (h Handlers) ListVoices(c *gin.Context) {
	list, err := h.Voices.List(c.Request.Context(), accountID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]voices.VoiceProfile, 0, len(list))
	for _, p := range list {
		out = append(out, p.Redacted())
	}
	c.JSON(http.StatusOK, gin.H{"voices": out})
}

// GetVoice includes the webhook secret so the owner can configure senders.
func (h Handlers) GetVoice(c *gin.Context) {
	p, err := h.Voices.Get(c.Request.Context(), accountID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h Handlers) CreateVoice(c *gin.Context) {
	var req voices.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := h.Voices.Create(c.Request.Context(), accountID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h Handlers) UpdateVoice(c *gin.Context) {
	var req voices.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	p, err := h.Voices.Update(c.Request.Context(), accountID(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, p.Redacted())
}

func (h Handlers) DeleteVoice(c *gin.Context) {
	if err := h.Voices.Delete(c.Request.Context(), accountID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ProviderVoices lists the stock voices a profile can be built on.
func (h Handlers) ProviderVoices(c *gin.Context) {
	if h.Provider == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "speech provider not configured"})
		return
	}
	list, err := h.Provider.ListVoices(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"voices": list})
}
