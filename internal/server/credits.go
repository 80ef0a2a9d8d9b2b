package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

type creditSummaryResponse struct {
	AccountID        string     `json:"account_id"`
	Included         int64      `json:"included"`
	Purchased        int64      `json:"purchased"`
	Total            int64      `json:"total"`
	MonthlyCredits   int64      `json:"monthly_credits"`
	IncludedExpireAt *time.Time `json:"included_credits_expire_at"`
	LastMonthlyGrant *time.Time `json:"last_monthly_grant_at"`
}

func (s *Server) GetCreditSummary(c *gin.Context) {
	accountID, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	ctx := c.Request.Context()

	if err := s.balanceSvc.EnsureBalanceExists(ctx, accountID); err != nil {
		AbortWithError(c, err)
		return
	}
	balance, err := s.balanceSvc.GetBalance(ctx, accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.subscriptions.Find(ctx, accountID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	monthly, err := s.balanceSvc.GetTierCredits(ctx, sub.Plan)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": creditSummaryResponse{
		AccountID:        balance.AccountID.String(),
		Included:         balance.IncludedCredits,
		Purchased:        balance.PurchasedCredits,
		Total:            balance.TotalCredits,
		MonthlyCredits:   monthly,
		IncludedExpireAt: balance.IncludedExpiresAt,
		LastMonthlyGrant: balance.LastGrantAt,
	}})
}

func (s *Server) ListCreditEntries(c *gin.Context) {
	accountID, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	entries, err := s.balanceSvc.ListEntries(c.Request.Context(), accountID, limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": entries})
}

func (s *Server) UnfreezeAccount(c *gin.Context) {
	accountID, err := parseAccountID(c)
	if err != nil {
		AbortWithError(c, ErrInvalidRequest)
		return
	}
	if err := s.balanceSvc.Unfreeze(c.Request.Context(), accountID); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func parseAccountID(c *gin.Context) (snowflake.ID, error) {
	return snowflake.ParseString(c.Param("account_id"))
}
