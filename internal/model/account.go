package model

import (
	"time"
)

type Account struct {
	ID                 string        `db:"id" json:"id"`
	Login              string        `db:"login" json:"login"`
	Password           string        `db:"password" json:"-"`
	GameName           string        `db:"game_name" json:"gameName"`
	Status             AccountStatus `db:"status" json:"status"`
	RenterID           *string       `db:"renter_id" json:"renterId,omitempty"`
	RentedUntil        *time.Time    `db:"rented_until" json:"rentedUntil,omitempty"`
	OrderID            *string       `db:"order_id" json:"orderId,omitempty"`
	OrderSynthetic     bool          `db:"order_synthetic" json:"orderSynthetic"`
	Warned             bool          `db:"warned" json:"warned"`
	BonusGranted       bool          `db:"bonus_granted" json:"bonusGranted"`
	GuardLookupEnabled bool          `db:"guard_lookup_enabled" json:"guardLookupEnabled"`
	MailboxLogin       *string       `db:"mailbox_login" json:"-"`
	MailboxPassword    *string       `db:"mailbox_password" json:"-"`
	IMAPHost           *string       `db:"imap_host" json:"-"`
	CreatedAt          time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updatedAt"`
}

func (a *Account) IsRented() bool {
	return a.Status == AccountStatusRented
}

// Remaining returns the lease time left at now. Zero or negative means the
// lease has lapsed (or the account is free).
func (a *Account) Remaining(now time.Time) time.Duration {
	if a.RentedUntil == nil {
		return 0
	}
	return a.RentedUntil.Sub(now)
}

// OrderRef reconstructs the typed order reference stored on the row.
func (a *Account) OrderRef() OrderRef {
	if a.OrderID == nil {
		return OrderRef{}
	}
	if a.OrderSynthetic {
		return SyntheticOrder(*a.OrderID)
	}
	return ExternalOrder(*a.OrderID)
}

// HasMailbox reports whether the account carries enough mailbox configuration
// for guard-code lookups.
func (a *Account) HasMailbox() bool {
	return a.MailboxLogin != nil && *a.MailboxLogin != "" &&
		a.MailboxPassword != nil && *a.MailboxPassword != "" &&
		a.IMAPHost != nil && *a.IMAPHost != ""
}

type CreateAccountParams struct {
	Login              string
	Password           string
	GameName           string
	GuardLookupEnabled bool
	MailboxLogin       *string
	MailboxPassword    *string
	IMAPHost           *string
}

// RentParams carries a FREE -> RENTED transition. Until is the absolute lease
// expiry the caller computed (now + purchased duration).
type RentParams struct {
	RenterID string
	Until    time.Time
	Order    OrderRef
}

// ExtendParams carries a RENTED -> RENTED merge. Bonus is added to the current
// expiry while the lease is live; Until (optional) replaces the expiry of a
// lapsed-but-unswept lease; Fallback applies when neither yields a future
// expiry.
type ExtendParams struct {
	Bonus    time.Duration
	Until    *time.Time
	Fallback time.Duration
	Order    OrderRef
}

// ReleaseInfo is the pre-reset snapshot captured when a lease is released,
// used to notify the outgoing occupant exactly once.
type ReleaseInfo struct {
	RenterID string
	Order    OrderRef
}
