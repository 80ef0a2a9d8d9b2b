package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	ledgerdomain "github.com/rankhive/creditd/internal/ledger/domain"
	packdomain "github.com/rankhive/creditd/internal/pack/domain"
	tierdomain "github.com/rankhive/creditd/internal/tier/domain"
)

var (
	ErrInvalidRequest = errors.New("invalid_request")
	ErrNotFound       = errors.New("not_found")
	ErrInternal       = errors.New("internal_error")
)

type errorPayload struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Shortfall int64  `json:"shortfall,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// AbortWithError records err for the error-mapping middleware.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

// ErrorHandlingMiddleware translates domain errors into stable JSON
// responses. Insufficient credits gets its own type so the dashboard
// can offer the purchase path; everything unexpected collapses into a
// generic retryable failure.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() || len(c.Errors) == 0 {
			return
		}
		err := c.Errors.Last().Err

		var insufficient *ledgerdomain.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			c.JSON(http.StatusPaymentRequired, errorResponse{Error: errorPayload{
				Type:      "insufficient_credits",
				Message:   "not enough credits for this operation",
				Shortfall: insufficient.Shortfall(),
			}})
			return
		}

		switch {
		case errors.Is(err, ErrInvalidRequest),
			errors.Is(err, ledgerdomain.ErrInvalidAccount),
			errors.Is(err, ledgerdomain.ErrInvalidAmount),
			errors.Is(err, ledgerdomain.ErrInvalidFeature),
			errors.Is(err, ledgerdomain.ErrInvalidIdempotencyKey),
			errors.Is(err, packdomain.ErrInvalidID),
			errors.Is(err, packdomain.ErrInvalidName),
			errors.Is(err, packdomain.ErrInvalidCredits),
			errors.Is(err, packdomain.ErrInvalidPrice),
			errors.Is(err, tierdomain.ErrInvalidPlan),
			errors.Is(err, tierdomain.ErrInvalidCredits):
			c.JSON(http.StatusBadRequest, errorResponse{Error: errorPayload{
				Type:    "invalid_request",
				Message: err.Error(),
			}})
		case errors.Is(err, ErrNotFound),
			errors.Is(err, packdomain.ErrNotFound),
			errors.Is(err, ledgerdomain.ErrBalanceNotFound),
			errors.Is(err, ledgerdomain.ErrEntryNotFound):
			c.JSON(http.StatusNotFound, errorResponse{Error: errorPayload{
				Type:    "not_found",
				Message: err.Error(),
			}})
		case errors.Is(err, ledgerdomain.ErrAccountFrozen):
			c.JSON(http.StatusConflict, errorResponse{Error: errorPayload{
				Type:    "account_frozen",
				Message: "account ledger is frozen pending review",
			}})
		default:
			c.JSON(http.StatusInternalServerError, errorResponse{Error: errorPayload{
				Type:    "internal_error",
				Message: "something went wrong, try again",
			}})
		}
	}
}
