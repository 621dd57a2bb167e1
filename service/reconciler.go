package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

const reconcileBatch = 100

// Reconciler resolves reservations whose claim request died between
// reserve and finalize (process crash, ledger outage while finalizing).
// A reservation is only touched once it is older than staleAfter, which
// must exceed the mint timeout so live mints are never raced.
type Reconciler struct {
	ledger     ports.ClaimLedger
	minter     ports.Minter
	sync       claimSync
	staleAfter time.Duration
	log        logrus.FieldLogger
	now        func() time.Time
	cron       *cron.Cron
}

func NewReconciler(
	ledger ports.ClaimLedger,
	users ports.UserStore,
	minter ports.Minter,
	eventPub ports.EventPublisher,
	staleAfter time.Duration,
	log logrus.FieldLogger,
) *Reconciler {
	return &Reconciler{
		ledger:     ledger,
		minter:     minter,
		sync:       claimSync{ledger: ledger, users: users, eventPub: eventPub},
		staleAfter: staleAfter,
		log:        log.WithField("service", "reconciler"),
		now:        time.Now,
	}
}

// Sweep resolves one batch of stale reservations and returns how many it finalized.
// Tokens found on the ledger become MINTED, the rest FAILED.
func (r *Reconciler) Sweep(ctx context.Context) (int, error) {
	stale, err := r.ledger.ListStale(ctx, r.now().Add(-r.staleAfter), reconcileBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale claims: %w", err)
	}

	lookup, canLookup := r.minter.(ports.MintLookup)
	resolved := 0
	for _, rec := range stale {
		log := r.log.WithFields(logrus.Fields{"wallet": rec.WalletAddress, "token_id": rec.TokenID})

		status, receipt := core.ClaimFailed, (*core.MintReceipt)(nil)
		if canLookup {
			found, ok, err := lookup.Lookup(ctx, rec.TokenID)
			if err != nil {
				// unknown outcome; leave it for the next sweep
				log.WithError(err).Warn("mint lookup failed")
				continue
			}
			if ok {
				status, receipt = core.ClaimMinted, &found
			}
		}

		err := r.ledger.Finalize(ctx, rec.WalletAddress, status, receipt)
		if errors.Is(err, core.ErrInvalidTransition) {
			// finalized by the claim request since it was listed
			continue
		}
		if err != nil {
			return resolved, fmt.Errorf("failed to finalize stale claim: %w", err)
		}
		resolved++
		r.sync.apply(ctx, log, rec.WalletAddress, status)
		log.WithField("status", status).Info("stale claim resolved")
	}
	return resolved, nil
}

// Start runs Sweep on schedule, a cron expression such as "@every 1m".
func (r *Reconciler) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := r.Sweep(context.Background()); err != nil {
			r.log.WithError(err).Error("reconcile sweep failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconcile schedule %q: %w", schedule, err)
	}
	r.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and returns a context that is done once a running sweep finishes.
func (r *Reconciler) Stop() context.Context {
	if r.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return r.cron.Stop()
}
