package service

import (
	"context"
	"errors"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/solquestio/solquestio-sub002/core"
	"github.com/solquestio/solquestio-sub002/ports"
)

// Quest is an entry of the quest catalog
type Quest struct {
	ID string `json:"id"`
	XP int64  `json:"xp"`
}

// Profile is what a signed-in wallet sees about itself. Claim is nil until the wallet reserves.
type Profile struct {
	User  core.UserAccount  `json:"user"`
	Claim *core.ClaimRecord `json:"claim"`
}

// UserService serves profile reads and quest completion
type UserService struct {
	users  ports.UserStore
	ledger ports.ClaimLedger
	quests map[string]int64
	log    logrus.FieldLogger
}

func NewUserService(users ports.UserStore, ledger ports.ClaimLedger, quests map[string]int64, log logrus.FieldLogger) *UserService {
	catalog := make(map[string]int64, len(quests))
	for id, xp := range quests {
		catalog[id] = xp
	}
	return &UserService{
		users:  users,
		ledger: ledger,
		quests: catalog,
		log:    log.WithField("service", "user"),
	}
}

// Quests returns the catalog ordered by id
func (s *UserService) Quests() []Quest {
	out := make([]Quest, 0, len(s.quests))
	for id, xp := range s.quests {
		out = append(out, Quest{ID: id, XP: xp})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *UserService) Profile(ctx context.Context, wallet string) (Profile, error) {
	user, err := s.users.GetByWallet(ctx, wallet)
	if err != nil {
		return Profile{}, err
	}

	p := Profile{User: user}
	rec, err := s.ledger.Get(ctx, wallet)
	switch {
	case errors.Is(err, core.ErrClaimNotFound):
	case err != nil:
		return Profile{}, err
	default:
		p.Claim = &rec
		// the ledger is authoritative when the mirrored state lags behind
		p.User.ClaimState = rec.Status
	}
	return p, nil
}

// CompleteQuest awards the quest's XP once per wallet
func (s *UserService) CompleteQuest(ctx context.Context, wallet, questID string) (core.UserAccount, error) {
	xp, ok := s.quests[questID]
	if !ok {
		return core.UserAccount{}, core.ErrQuestNotFound
	}
	user, err := s.users.CompleteQuest(ctx, wallet, questID, xp)
	if err != nil {
		return core.UserAccount{}, err
	}
	s.log.WithFields(logrus.Fields{"wallet": wallet, "quest": questID, "xp": user.XP}).Info("quest completed")
	return user, nil
}
