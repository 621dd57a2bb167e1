package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/solquestio/solquestio-sub002/core"
)

// errorResponse is the body of every non-2xx response except 401s
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var unauthorized = errorResponse{Error: "unauthorized"}

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorTable is checked in order with errors.Is; the first match wins.
var errorTable = []errorMapping{
	{core.ErrInvalidAddress, http.StatusBadRequest, "invalid_address"},
	{core.ErrAuthenticationFailed, http.StatusUnauthorized, ""},
	{core.ErrInvalidToken, http.StatusUnauthorized, ""},
	{core.ErrAlreadyClaimed, http.StatusConflict, "already_claimed"},
	{core.ErrSupplyExhausted, http.StatusGone, "supply_exhausted"},
	{core.ErrNotEligible, http.StatusForbidden, "not_eligible"},
	{core.ErrExternalMintFailed, http.StatusBadGateway, "mint_failed"},
	{core.ErrStoreUnavailable, http.StatusServiceUnavailable, "store_unavailable"},
	{core.ErrInvalidTransition, http.StatusConflict, "invalid_transition"},
	{core.ErrClaimNotFound, http.StatusNotFound, "claim_not_found"},
	{core.ErrUserNotFound, http.StatusNotFound, "user_not_found"},
	{core.ErrQuestNotFound, http.StatusNotFound, "quest_not_found"},
}

// writeError maps err to its status and body. Unknown errors become a 500
// and are logged; their text never reaches the client.
func writeError(c *gin.Context, log logrus.FieldLogger, err error) {
	for _, m := range errorTable {
		if !errors.Is(err, m.err) {
			continue
		}
		if m.status == http.StatusUnauthorized {
			c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized)
			return
		}
		c.AbortWithStatusJSON(m.status, errorResponse{Error: m.err.Error(), Code: m.code})
		return
	}

	log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse{Error: "internal error", Code: "internal"})
}

// writeBindError reports a request that failed binding or validation
func writeBindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			if fe.Tag() == walletTag {
				c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: core.ErrInvalidAddress.Error(), Code: "invalid_address"})
				return
			}
		}
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "invalid request", Code: "invalid_request"})
}
