package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type applyPurchaseRequest struct {
	AccountID    string `json:"account_id"`
	PackID       string `json:"pack_id"`
	GatewayTxnID string `json:"gateway_txn_id"`
}

// ApplyPurchase is invoked by the payment webhook handler once the
// gateway has confirmed a charge. Payment validation happened there;
// this endpoint only makes the ledger mutation exactly-once.
func (s *Server) ApplyPurchase(c *gin.Context) {
	var req applyPurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	packID, err := snowflake.ParseString(strings.TrimSpace(req.PackID))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.packSvc.ApplyPurchase(c.Request.Context(), accountID, packID, req.GatewayTxnID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

type runGrantRequest struct {
	AccountID string `json:"account_id"`
}

// RunGrant triggers the grant policy for one account outside the
// scheduled sweep, e.g. right after a signup or plan change. Safe to
// call repeatedly; only the first call in a period grants.
func (s *Server) RunGrant(c *gin.Context) {
	var req runGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	accountID, err := snowflake.ParseString(strings.TrimSpace(req.AccountID))
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	result, err := s.grantSvc.RunForAccount(c.Request.Context(), accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

type upsertPlanCreditsRequest struct {
	Plan           string `json:"plan"`
	MonthlyCredits int64  `json:"monthly_credits"`
}

func (s *Server) UpsertPlanCredits(c *gin.Context) {
	var req upsertPlanCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}

	pc, err := s.tierSvc.Upsert(c.Request.Context(), req.Plan, req.MonthlyCredits)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": pc})
}
