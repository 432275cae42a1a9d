package httpapi

import (
	"net/http"

	"voice-agent-platform/internal/integrations"

	"github.com/gin-gonic/gin"
)

// Integration responses never carry the provider API key.

func (h Handlers) ListIntegrations(c *gin.Context) {
	list, err := h.Integrations.List(c.Request.Context(), accountID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]integrations.Integration, 0, len(list))
	for _, i := range list {
		out = append(out, i.Redacted())
	}
	c.JSON(http.StatusOK, gin.H{"integrations": out})
}

func (h Handlers) GetIntegration(c *gin.Context) {
	i, err := h.Integrations.Get(c.Request.Context(), accountID(c), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, i.Redacted())
}

func (h Handlers) CreateIntegration(c *gin.Context) {
	var req integrations.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	i, err := h.Integrations.Create(c.Request.Context(), accountID(c), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, i.Redacted())
}

func (h Handlers) UpdateIntegration(c *gin.Context) {
	var req integrations.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	i, err := h.Integrations.Update(c.Request.Context(), accountID(c), c.Param("id"), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, i.Redacted())
}

func (h Handlers) DeleteIntegration(c *gin.Context) {
	if err := h.Integrations.Delete(c.Request.Context(), accountID(c), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
