package model

import "time"

// FriendModeFlag is the per-buyer ephemeral flag that switches a multi-unit
// purchase from lease extension to fan-out across distinct accounts.
type FriendModeFlag struct {
	BuyerID     string    `db:"buyer_id" json:"buyerId"`
	ActivatedAt time.Time `db:"activated_at" json:"activatedAt"`
	Active      bool      `db:"active" json:"active"`
}
