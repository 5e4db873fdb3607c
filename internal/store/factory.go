package store

import (
	"time"

	"nrrp.app/referrals/core/db"
)

// Stores hands out store implementations bound to one backend.
type Stores struct {
	referrals ReferralStore
}

// NewStores builds the Postgres-backed stores. Every call is bounded by timeout.
func NewStores(database *db.DB, timeout time.Duration) *Stores {
	return &Stores{referrals: WithTimeout(newReferralStore(database), timeout)}
}

// NewStoresFrom wraps an already constructed referral store (SQLite, in-memory).
func NewStoresFrom(referrals ReferralStore, timeout time.Duration) *Stores {
	return &Stores{referrals: WithTimeout(referrals, timeout)}
}

func (s *Stores) Referrals() ReferralStore {
	return s.referrals
}
