package http

import (
	"net/http"
	"strconv"

	"github.com/calculus-guy/paymentscore/internal/transaction/application"
	"github.com/calculus-guy/paymentscore/internal/transaction/domain"
	"github.com/gin-gonic/gin"
)

type Handler struct {
	router *application.Router
}

func NewHandler(router *application.Router) *Handler {
	return &Handler{router: router}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/operations", h.SubmitOperation)
	r.GET("/transactions/:id", h.GetTransaction)
	r.GET("/subjects/:id/transactions", h.ListTransactions)
}

func (h *Handler) SubmitOperation(c *gin.Context) {
	var req application.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	outcome, err := h.router.SubmitOperation(c.Request.Context(), req)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation processing failed"})
		return
	}

	c.JSON(statusFor(outcome), outcome)
}

// statusFor maps outcome statuses onto HTTP codes: business rejections are
// client errors, pending review and replays are 202/200.
func statusFor(outcome *domain.Outcome) int {
	switch outcome.Status {
	case domain.OutcomeRejected:
		switch outcome.ErrorKind {
		case domain.KindBlocked, domain.KindLimitExceeded:
			return http.StatusTooManyRequests
		case domain.KindIdempotencyConflict:
			return http.StatusConflict
		default:
			return http.StatusUnprocessableEntity
		}
	case domain.OutcomeFailed:
		return http.StatusUnprocessableEntity
	case domain.OutcomePendingReview, domain.OutcomeInProgress:
		return http.StatusAccepted
	default:
		return http.StatusOK
	}
}

func (h *Handler) GetTransaction(c *gin.Context) {
	txn, err := h.router.GetTransaction(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if txn == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
		return
	}
	c.JSON(http.StatusOK, txn)
}

func (h *Handler) ListTransactions(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	txns, err := h.router.ListTransactions(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txns})
}
