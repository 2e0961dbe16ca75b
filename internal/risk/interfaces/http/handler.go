package http

import (
	"net/http"
	"time"

	"github.com/calculus-guy/paymentscore/internal/risk/application"
	"github.com/gin-gonic/gin"
)

// Handler exposes the risk engine's admin surface.
type Handler struct {
	engine *application.Engine
}

func NewHandler(engine *application.Engine) *Handler {
	return &Handler{engine: engine}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/risk")
	{
		g.POST("/subjects/:id/block", h.BlockSubject)
		g.POST("/subjects/:id/unblock", h.UnblockSubject)
		g.GET("/subjects/:id/suspicious", h.ListSuspicious)
	}
}

type BlockReq struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *Handler) BlockSubject(c *gin.Context) {
	var req BlockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.engine.HardBlockSubject(c.Request.Context(), c.Param("id"), req.Reason); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) UnblockSubject(c *gin.Context) {
	if err := h.engine.ClearHardBlock(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) ListSuspicious(c *gin.Context) {
	window, err := time.ParseDuration(c.DefaultQuery("window", "24h"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid window"})
		return
	}

	entries, err := h.engine.ListSuspicious(c.Request.Context(), c.Param("id"), time.Now().Add(-window))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}
