package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	debitdomain "github.com/rankhive/creditd/internal/debit/domain"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
)

type debitRequest struct {
	AccountID      string `json:"account_id" binding:"required"`
	Amount         int64  `json:"amount" binding:"required"`
	Feature        string `json:"feature" binding:"required"`
	IdempotencyKey string `json:"idempotency_key" binding:"required"`
}

// ApplyDebit charges an account on behalf of a product service. The
// caller supplies the idempotency key so its own retries stay safe.
func (s *Server) ApplyDebit(c *gin.Context) {
	var req debitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	accountID, err := snowflake.ParseString(req.AccountID)
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrInvalidAccount)
		return
	}
	ctx := c.Request.Context()

	if err := s.balanceSvc.EnsureBalanceExists(ctx, accountID); err != nil {
		AbortWithError(c, err)
		return
	}
	result, err := s.debitSvc.Debit(ctx, debitdomain.DebitRequest{
		AccountID:      accountID,
		Amount:         req.Amount,
		Feature:        req.Feature,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, gin.H{"data": result})
}

// RefundDebit reverses a prior debit by one of its ledger entry ids.
func (s *Server) RefundDebit(c *gin.Context) {
	entryID, err := snowflake.ParseString(c.Param("entry_id"))
	if err != nil {
		AbortWithError(c, ledgerdomain.ErrEntryNotFound)
		return
	}

	result, err := s.debitSvc.Refund(c.Request.Context(), entryID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}
