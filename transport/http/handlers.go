package http

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/service"
)

// Handlers contains the HTTP handlers
type Handlers struct {
	auth   *service.AuthService
	claims *service.ClaimService
	users  *service.UserService
	health func(ctx context.Context) error
	log    logrus.FieldLogger
}

// NewHandlers creates new handlers
func NewHandlers(s Services, log logrus.FieldLogger) *Handlers {
	return &Handlers{
		auth:   s.Auth,
		claims: s.Claims,
		users:  s.Users,
		health: s.Health,
		log:    log,
	}
}

type challengeRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required,wallet"`
}

type challengeResponse struct {
	Message string `json:"message"`
}

// Challenge returns the message the wallet has to sign
func (h *Handlers) Challenge(c *gin.Context) {
	var req challengeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	ch, err := h.auth.CreateChallenge(req.WalletAddress)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, challengeResponse{Message: ch.Message})
}

type verifyRequest struct {
	WalletAddress string `json:"walletAddress" binding:"required,wallet"`
	Signature     string `json:"signature" binding:"required"`
	Message       string `json:"message" binding:"required"`
}

type verifyResponse struct {
	Token     string           `json:"token"`
	ExpiresAt time.Time        `json:"expiresAt"`
	User      core.UserAccount `json:"user"`
}

// Verify exchanges a signed challenge for a session token
func (h *Handlers) Verify(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeBindError(c, err)
		return
	}

	session, err := h.auth.Verify(c.Request.Context(), req.WalletAddress, req.Signature, req.Message)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, verifyResponse{Token: session.Token, ExpiresAt: session.ExpiresAt, User: session.User})
}

type eligibilityQuery struct {
	WalletAddress string `form:"walletAddress" binding:"required,wallet"`
}

// Eligibility reports whether a wallet can claim, without claiming
func (h *Handlers) Eligibility(c *gin.Context) {
	var q eligibilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}

	el, err := h.claims.Eligibility(c.Request.Context(), q.WalletAddress)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, el)
}

type claimRequest struct {
	WalletAddress string `json:"walletAddress" binding:"omitempty,wallet"`
}

type claimResponse struct {
	Success bool             `json:"success"`
	TokenID int64            `json:"tokenId"`
	Receipt core.MintReceipt `json:"receipt"`
}

// Claim mints the caller's token. The body is optional; a wallet in it must
// be the session's own.
func (h *Handlers) Claim(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized)
		return
	}

	var req claimRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBindError(c, err)
		return
	}
	if req.WalletAddress != "" && req.WalletAddress != identity.WalletAddress {
		c.AbortWithStatusJSON(http.StatusForbidden, errorResponse{Error: "wallet does not match session", Code: "wallet_mismatch"})
		return
	}

	res, err := h.claims.Claim(c.Request.Context(), identity.WalletAddress)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, claimResponse{Success: true, TokenID: res.TokenID, Receipt: res.Receipt})
}

// Me returns the authenticated user and their claim
func (h *Handlers) Me(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized)
		return
	}

	profile, err := h.users.Profile(c.Request.Context(), identity.WalletAddress)
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, profile)
}

type userResponse struct {
	User core.UserAccount `json:"user"`
}

// CompleteQuest marks a quest done for the caller
func (h *Handlers) CompleteQuest(c *gin.Context) {
	identity, ok := identityFrom(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, unauthorized)
		return
	}

	user, err := h.users.CompleteQuest(c.Request.Context(), identity.WalletAddress, c.Param("questId"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, userResponse{User: user})
}

// Quests lists the quest catalog
func (h *Handlers) Quests(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"quests": h.users.Quests()})
}

// Health reports whether the backing store is reachable
func (h *Handlers) Health(c *gin.Context) {
	if h.health != nil {
		if err := h.health(c.Request.Context()); err != nil {
			h.log.WithError(err).Warn("health check failed")
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
