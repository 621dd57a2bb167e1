package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// Session is the result of a successful wallet sign-in
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      core.UserAccount
}

// AuthService handles authentication business logic
type AuthService struct {
	challenges *ChallengeIssuer
	verifier   ports.SignatureVerifier
	replay     ports.ReplayGuard
	users      ports.UserStore
	tokenizer  ports.Tokenizer
	eventPub   ports.EventPublisher
	log        logrus.FieldLogger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	challenges *ChallengeIssuer,
	verifier ports.SignatureVerifier,
	replay ports.ReplayGuard,
	users ports.UserStore,
	tokenizer ports.Tokenizer,
	eventPub ports.EventPublisher,
	log logrus.FieldLogger,
) *AuthService {
	return &AuthService{
		challenges: challenges,
		verifier:   verifier,
		replay:     replay,
		users:      users,
		tokenizer:  tokenizer,
		eventPub:   eventPub,
		log:        log.WithField("service", "auth"),
	}
}

// CreateChallenge returns the message the wallet must sign
func (s *AuthService) CreateChallenge(address string) (core.Challenge, error) {
	return s.challenges.Issue(address)
}

// Verify authenticates a wallet by its signature over a previously issued
// challenge and opens a session. Each challenge can be used once.
//
// All challenge and signature failures are reported as
// core.ErrAuthenticationFailed so callers cannot tell them apart.
func (s *AuthService) Verify(ctx context.Context, address, signature, message string) (Session, error) {
	if err := core.ValidateWalletAddress(address); err != nil {
		return Session{}, err
	}

	issuedAt, err := s.challenges.Verify(address, message)
	if err != nil {
		s.log.WithField("wallet", address).WithError(err).Debug("challenge rejected")
		return Session{}, fmt.Errorf("%w: %w", core.ErrAuthenticationFailed, err)
	}

	if !s.verifier.Verify(address, message, signature) {
		s.log.WithField("wallet", address).Debug("signature rejected")
		return Session{}, core.ErrAuthenticationFailed
	}

	key := address + ":" + strconv.FormatInt(issuedAt.UnixMilli(), 10)
	fresh, err := s.replay.MarkUsed(ctx, key, s.challenges.Window())
	if err != nil {
		return Session{}, fmt.Errorf("failed to record challenge: %w", err)
	}
	if !fresh {
		return Session{}, fmt.Errorf("%w: %w", core.ErrAuthenticationFailed, core.ErrChallengeReplayed)
	}

	user, err := s.users.Upsert(ctx, address)
	if err != nil {
		return Session{}, fmt.Errorf("failed to load user: %w", err)
	}

	token, expiresAt, err := s.tokenizer.Issue(user.ID, address)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session token: %w", err)
	}

	if err := s.eventPub.PublishLogin(ctx, user); err != nil {
		// the session is already valid; the event is informational
		s.log.WithError(err).Warn("failed to publish login event")
	}

	s.log.WithFields(logrus.Fields{"wallet": address, "user_id": user.ID}).Info("wallet signed in")
	return Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// ValidateAccessToken resolves a session token to the caller's identity
func (s *AuthService) ValidateAccessToken(token string) (core.Identity, error) {
	return s.tokenizer.Validate(token)
}
