package server

import (
	"net/http"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	subscriptiondomain "github.com/rankhive/creditd/internal/subscription/domain"
)

type subscriptionSyncRequest struct {
	AccountID       string     `json:"account_id" binding:"required"`
	Plan            string     `json:"plan"`
	BillingAnchorAt *time.Time `json:"billing_anchor_at"`
}

// SyncSubscription records an account's current plan as reported by
// the subscription lifecycle. An empty plan marks the account as free
// tier; the change takes effect at the next grant cycle.
func (s *Server) SyncSubscription(c *gin.Context) {
	var req subscriptionSyncRequest
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

	if err := s.subscriptions.Upsert(ctx, subscriptiondomain.AccountSubscription{
		AccountID:       accountID,
		Plan:            req.Plan,
		BillingAnchorAt: req.BillingAnchorAt,
	}); err != nil {
		AbortWithError(c, err)
		return
	}
	if err := s.balanceSvc.EnsureBalanceExists(ctx, accountID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
