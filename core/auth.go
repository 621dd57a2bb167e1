package core

import "time"

// Challenge is the message a wallet owner signs to prove key possession.
// It is never stored; the verifier re-derives it from the wallet and timestamp.
type Challenge struct {
	WalletAddress string
	IssuedAt      time.Time
	Message       string
}

// Identity is the authenticated caller resolved from a session token
type Identity struct {
	UserID        string
	WalletAddress string
	IssuedAt      time.Time
	ExpiresAt     time.Time
}

// UserAccount is keyed by wallet address and upserted on first login
type UserAccount struct {
	ID              string          `json:"id"`
	WalletAddress   string          `json:"walletAddress"`
	XP              int64           `json:"xp"`
	CompletedQuests map[string]bool `json:"completedQuestIds"`
	ClaimState      ClaimStatus     `json:"claimState"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// QuestIDs returns the completed quest ids in no particular order.
func (u UserAccount) QuestIDs() []string {
	ids := make([]string, 0, len(u.CompletedQuests))
	for id := range u.CompletedQuests {
		ids = append(ids, id)
	}
	return ids
}
