package http

import (
	"net/http"
	"time"

	"github.com/calculus-guy/paymentscore/internal/guard/application"
	"github.com/calculus-guy/paymentscore/internal/guard/domain"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// Handler exposes the guard's admin surface: limit overrides, block
// clearing and the violation audit trail.
type Handler struct {
	guard *application.Guard
}

func NewHandler(guard *application.Guard) *Handler {
	return &Handler{guard: guard}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	g := r.Group("/limits")
	{
		g.POST("/override", h.OverrideRule)
		g.POST("/blocks/clear", h.ClearBlock)
		g.GET("/violations/:subject", h.ListViolations)
	}
}

type OverrideReq struct {
	Scope             string `json:"scope" binding:"required"`
	OperationType     string `json:"operation_type" binding:"required"`
	Currency          string `json:"currency" binding:"required"`
	MaxCount          int    `json:"max_count"`
	HourlyAmount      string `json:"hourly_amount"`
	DailyAmount       string `json:"daily_amount"`
	MonthlyAmount     string `json:"monthly_amount"`
	SingleTransaction string `json:"single_transaction"`
}

func (h *Handler) OverrideRule(c *gin.Context) {
	var req OverrideReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := domain.Rule{MaxCount: req.MaxCount}
	for _, field := range []struct {
		raw  string
		dest *decimal.Decimal
	}{
		{req.HourlyAmount, &rule.HourlyAmount},
		{req.DailyAmount, &rule.DailyAmount},
		{req.MonthlyAmount, &rule.MonthlyAmount},
		{req.SingleTransaction, &rule.SingleTransaction},
	} {
		if field.raw == "" {
			continue
		}
		amount, err := decimal.NewFromString(field.raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount: " + field.raw})
			return
		}
		*field.dest = amount
	}

	h.guard.OverrideRule(domain.Scope(req.Scope), req.OperationType, req.Currency, rule)
	c.Status(http.StatusOK)
}

type ClearBlockReq struct {
	Scope         string `json:"scope" binding:"required"`
	ID            string `json:"id" binding:"required"`
	OperationType string `json:"operation_type" binding:"required"`
	Currency      string `json:"currency" binding:"required"`
}

func (h *Handler) ClearBlock(c *gin.Context) {
	var req ClearBlockReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.guard.ClearBlock(c.Request.Context(), domain.Scope(req.Scope), req.ID, req.OperationType, req.Currency); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) ListViolations(c *gin.Context) {
	hours := 24
	if v, err := time.ParseDuration(c.DefaultQuery("window", "24h")); err == nil {
		hours = int(v.Hours())
	}
	since := time.Now().Add(-time.Duration(hours) * time.Hour)

	violations, err := h.guard.ListViolations(c.Request.Context(), c.Param("subject"), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"violations": violations, "count": len(violations)})
}
