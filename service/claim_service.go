package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

const (
	defaultMintTimeout      = 30 * time.Second
	defaultFinalizeAttempts = 3
)

// Eligibility reasons
const (
	ReasonEligible       = "eligible"
	ReasonRetryAvailable = "previous mint failed, retry available"
	ReasonAlreadyClaimed = "already claimed"
	ReasonInProgress     = "claim in progress"
	ReasonSoldOut        = "sold out"
	ReasonInsufficientXP = "insufficient xp"
)

type ClaimConfig struct {
	MinXP            int64
	MintTimeout      time.Duration
	FinalizeAttempts int
}

// ClaimService orchestrates a claim: reserve a slot in the ledger, mint
// outside of any store lock, then finalize the reservation.
type ClaimService struct {
	ledger   ports.ClaimLedger
	users    ports.UserStore
	minter   ports.Minter
	metadata ports.MetadataStore
	template MetadataTemplate
	sync     claimSync
	log      logrus.FieldLogger
	cfg      ClaimConfig
	retryGap time.Duration
}

func NewClaimService(
	ledger ports.ClaimLedger,
	users ports.UserStore,
	minter ports.Minter,
	metadata ports.MetadataStore,
	template MetadataTemplate,
	eventPub ports.EventPublisher,
	log logrus.FieldLogger,
	cfg ClaimConfig,
) *ClaimService {
	if cfg.MintTimeout <= 0 {
		cfg.MintTimeout = defaultMintTimeout
	}
	if cfg.FinalizeAttempts <= 0 {
		cfg.FinalizeAttempts = defaultFinalizeAttempts
	}
	return &ClaimService{
		ledger:   ledger,
		users:    users,
		minter:   minter,
		metadata: metadata,
		template: template,
		sync:     claimSync{ledger: ledger, users: users, eventPub: eventPub},
		log:      log.WithField("service", "claim"),
		cfg:      cfg,
		retryGap: 100 * time.Millisecond,
	}
}

// Claim reserves a token for wallet and mints it.
//
// Business rejections from the ledger (core.ErrAlreadyClaimed,
// core.ErrSupplyExhausted) are returned as is. A failed or timed out mint
// leaves the claim FAILED and returns core.ErrExternalMintFailed; the wallet
// may claim again and will be given the same token id.
//
// Lookup, metadata publishing and the mint share one MintTimeout deadline, so
// a reservation is live for at most MintTimeout plus the finalize retries.
func (s *ClaimService) Claim(ctx context.Context, wallet string) (core.MintResult, error) {
	if err := core.ValidateWalletAddress(wallet); err != nil {
		return core.MintResult{}, err
	}
	if err := s.checkXP(ctx, wallet); err != nil {
		return core.MintResult{}, err
	}

	res, err := s.ledger.Reserve(ctx, wallet)
	if err != nil {
		return core.MintResult{}, err
	}
	log := s.log.WithFields(logrus.Fields{"wallet": wallet, "token_id": res.TokenID, "retry": res.Retry})
	log.Info("claim slot reserved")

	// the mint must not be abandoned halfway because the caller went away
	detached := context.WithoutCancel(ctx)
	mintCtx, cancel := context.WithTimeout(detached, s.cfg.MintTimeout)
	defer cancel()

	if res.Retry {
		if receipt, found := s.lookup(mintCtx, log, res.TokenID); found {
			log.Info("token already on ledger, skipping mint")
			return s.complete(detached, log, wallet, res.TokenID, receipt)
		}
	}

	receipt, err := s.mint(mintCtx, wallet, res.TokenID)
	if err != nil {
		log.WithError(err).Warn("mint failed")
		s.fail(detached, log, wallet)
		return core.MintResult{}, fmt.Errorf("%w: %w", core.ErrExternalMintFailed, err)
	}

	return s.complete(detached, log, wallet, res.TokenID, receipt)
}

// Eligibility reports whether wallet could claim right now without reserving anything
func (s *ClaimService) Eligibility(ctx context.Context, wallet string) (core.Eligibility, error) {
	if err := core.ValidateWalletAddress(wallet); err != nil {
		return core.Eligibility{}, err
	}

	supply, err := s.ledger.Supply(ctx)
	if err != nil {
		return core.Eligibility{}, err
	}
	out := core.Eligibility{Remaining: supply.Remaining(), NextTokenID: supply.NextTokenID()}

	rec, err := s.ledger.Get(ctx, wallet)
	switch {
	case errors.Is(err, core.ErrClaimNotFound):
	case err != nil:
		return core.Eligibility{}, err
	case rec.Status == core.ClaimMinted:
		out.Reason = ReasonAlreadyClaimed
		out.NextTokenID = 0
		return out, nil
	case rec.Status == core.ClaimReserved:
		out.Reason = ReasonInProgress
		out.NextTokenID = 0
		return out, nil
	case rec.Status == core.ClaimFailed:
		out.NextTokenID = rec.TokenID
	}

	if err := s.checkXP(ctx, wallet); err != nil {
		if !errors.Is(err, core.ErrNotEligible) {
			return core.Eligibility{}, err
		}
		out.Reason = ReasonInsufficientXP
		out.NextTokenID = 0
		return out, nil
	}

	if rec.Status == core.ClaimFailed {
		out.Eligible = true
		out.Reason = ReasonRetryAvailable
		return out, nil
	}
	if supply.Remaining() == 0 {
		out.Reason = ReasonSoldOut
		return out, nil
	}
	out.Eligible = true
	out.Reason = ReasonEligible
	return out, nil
}

func (s *ClaimService) checkXP(ctx context.Context, wallet string) error {
	if s.cfg.MinXP <= 0 {
		return nil
	}
	user, err := s.users.GetByWallet(ctx, wallet)
	if errors.Is(err, core.ErrUserNotFound) {
		return core.ErrNotEligible
	}
	if err != nil {
		return err
	}
	if user.XP < s.cfg.MinXP {
		return fmt.Errorf("%w: %d xp, %d required", core.ErrNotEligible, user.XP, s.cfg.MinXP)
	}
	return nil
}

func (s *ClaimService) mint(ctx context.Context, wallet string, tokenID int64) (core.MintReceipt, error) {
	md := s.template.Build(tokenID)
	uri, err := s.metadata.Publish(ctx, tokenID, md)
	if err != nil {
		return core.MintReceipt{}, fmt.Errorf("failed to publish metadata: %w", err)
	}
	md.URI = uri

	return s.minter.Mint(ctx, tokenID, wallet, md)
}

// lookup reports whether tokenID already exists on the ledger. Minters that
// cannot answer are treated as "not found".
func (s *ClaimService) lookup(ctx context.Context, log logrus.FieldLogger, tokenID int64) (core.MintReceipt, bool) {
	lookup, ok := s.minter.(ports.MintLookup)
	if !ok {
		return core.MintReceipt{}, false
	}

	receipt, found, err := lookup.Lookup(ctx, tokenID)
	if err != nil {
		log.WithError(err).Warn("mint lookup failed")
		return core.MintReceipt{}, false
	}
	return receipt, found
}

// complete records a confirmed mint. A ledger that stays unreachable leaves
// the claim RESERVED for the reconciler; the mint itself has happened, so the
// caller still gets the receipt. A claim the reconciler already marked FAILED
// is re-reserved and recorded as MINTED; if that fails the caller gets the error.
func (s *ClaimService) complete(ctx context.Context, log logrus.FieldLogger, wallet string, tokenID int64, receipt core.MintReceipt) (core.MintResult, error) {
	err := s.finalize(ctx, wallet, core.ClaimMinted, &receipt)
	if errors.Is(err, core.ErrInvalidTransition) {
		log.Warn("claim finalized while minting, recording mint")
		err = s.repair(ctx, wallet, tokenID, receipt)
		if err != nil {
			log.WithError(err).Error("failed to record mint")
			return core.MintResult{}, fmt.Errorf("failed to record mint of token %d: %w", tokenID, err)
		}
	}
	if err != nil {
		log.WithError(err).Error("failed to finalize minted claim")
	} else {
		s.sync.apply(ctx, log, wallet, core.ClaimMinted)
	}
	log.WithField("signature", receipt.Signature).Info("token minted")
	return core.MintResult{TokenID: tokenID, Receipt: receipt}, nil
}

// repair moves a claim that was failed under a running mint back to MINTED
func (s *ClaimService) repair(ctx context.Context, wallet string, tokenID int64, receipt core.MintReceipt) error {
	rec, err := s.ledger.Get(ctx, wallet)
	if err != nil {
		return err
	}
	if rec.Status != core.ClaimFailed || rec.TokenID != tokenID {
		return fmt.Errorf("%w: claim is %s with token %d", core.ErrInvalidTransition, rec.Status, rec.TokenID)
	}
	res, err := s.ledger.Reserve(ctx, wallet)
	if err != nil {
		return err
	}
	if res.TokenID != tokenID {
		return fmt.Errorf("%w: re-reserved token %d", core.ErrInvalidTransition, res.TokenID)
	}
	return s.finalize(ctx, wallet, core.ClaimMinted, &receipt)
}

func (s *ClaimService) fail(ctx context.Context, log logrus.FieldLogger, wallet string) {
	if err := s.finalize(ctx, wallet, core.ClaimFailed, nil); err != nil {
		log.WithError(err).Error("failed to finalize failed claim")
		return
	}
	s.sync.apply(ctx, log, wallet, core.ClaimFailed)
}

func (s *ClaimService) finalize(ctx context.Context, wallet string, status core.ClaimStatus, receipt *core.MintReceipt) error {
	var err error
	for attempt := 0; attempt < s.cfg.FinalizeAttempts; attempt++ {
		if attempt > 0 {
			t := time.NewTimer(s.retryGap)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		err = s.ledger.Finalize(ctx, wallet, status, receipt)
		if err == nil || !errors.Is(err, core.ErrStoreUnavailable) {
			return err
		}
	}
	return err
}

// claimSync mirrors a finalized claim onto the user account and announces
// it. Both steps are best effort; the ledger stays authoritative.
type claimSync struct {
	ledger   ports.ClaimLedger
	users    ports.UserStore
	eventPub ports.EventPublisher
}

func (c claimSync) apply(ctx context.Context, log logrus.FieldLogger, wallet string, status core.ClaimStatus) {
	if err := c.users.SetClaimState(ctx, wallet, status); err != nil && !errors.Is(err, core.ErrUserNotFound) {
		log.WithError(err).Warn("failed to update user claim state")
	}

	rec, err := c.ledger.Get(ctx, wallet)
	if err != nil {
		log.WithError(err).Warn("failed to read claim for event")
		return
	}
	if err := c.eventPub.PublishClaim(ctx, rec); err != nil {
		log.WithError(err).Warn("failed to publish claim event")
	}
}
