package http

import (
	"errors"
	"net/http"

	"github.com/calculus-guy/paymentscore/internal/review/application"
	"github.com/calculus-guy/paymentscore/internal/review/domain"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	queue *application.Queue
}

func NewHandler(queue *application.Queue) *Handler {
	return &Handler{queue: queue}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/reviews")
	{
		g.GET("/pending", h.Pending)
		g.GET("/reviewer/:id", h.ForReviewer)
		g.GET("/:id", h.Get)
		g.POST("/:id/assign", h.Assign)
		g.POST("/:id/decision", h.Decide)
	}
}

func (h *Handler) Pending(c *gin.Context) {
	items, err := h.queue.Pending(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) ForReviewer(c *gin.Context) {
	items, err := h.queue.ForReviewer(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

func (h *Handler) Get(c *gin.Context) {
	item, err := h.queue.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return
	}
	c.JSON(http.StatusOK, item)
}

type AssignReq struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
}

func (h *Handler) Assign(c *gin.Context) {
	var req AssignReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.queue.AssignReviewer(c.Request.Context(), c.Param("id"), req.ReviewerID); err != nil {
		c.JSON(statusForReviewErr(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

type DecisionReq struct {
	ReviewerID string `json:"reviewer_id" binding:"required"`
	Decision   string `json:"decision" binding:"required"`
	Notes      string `json:"notes"`
}

func (h *Handler) Decide(c *gin.Context) {
	var req DecisionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.queue.SubmitDecision(c.Request.Context(), c.Param("id"), req.ReviewerID, domain.Decision(req.Decision), req.Notes)
	if err != nil {
		c.JSON(statusForReviewErr(err), gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func statusForReviewErr(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrTerminal),
		errors.Is(err, domain.ErrNotAssigned),
		errors.Is(err, domain.ErrWrongReviewer),
		errors.Is(err, domain.ErrInvalidDecision):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
