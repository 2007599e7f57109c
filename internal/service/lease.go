package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/capability"
	"github.com/steamrent/rental-server-go/internal/config"
	"github.com/steamrent/rental-server-go/internal/model"
	"github.com/steamrent/rental-server-go/internal/repository"
)

// ExpiryScheduler arms the warning and completion watchers for a lease.
// Implemented by the jobs package; declared here so services stay decoupled
// from the watcher wiring.
type ExpiryScheduler interface {
	Schedule(accountID, renterID string, remaining time.Duration)
}

// LeaseService is the rent / extend / release state machine. All merge logic
// runs inside the store's atomic operations; this layer adds validation,
// logging and the end-of-rental notification.
type LeaseService struct {
	accounts repository.AccountRepository
	notifier capability.Notifier
	cfg      *config.Config
}

func NewLeaseService(accounts repository.AccountRepository, notifier capability.Notifier, cfg *config.Config) *LeaseService {
	return &LeaseService{
		accounts: accounts,
		notifier: notifier,
		cfg:      cfg,
	}
}

// Rent transitions a FREE account to RENTED for the given duration. Fails
// with ALREADY_RENTED when the account is occupied, without mutating state.
func (s *LeaseService) Rent(ctx context.Context, accountID, renterID string, duration time.Duration, order model.OrderRef) (time.Time, error) {
	if duration <= 0 {
		duration = s.cfg.DefaultRent()
	}

	until, err := s.accounts.MarkRented(ctx, accountID, model.RentParams{
		RenterID: renterID,
		Until:    time.Now().Add(duration),
		Order:    order,
	})
	if err != nil {
		return time.Time{}, err
	}

	log.Info().
		Str("account_id", accountID).
		Str("renter_id", renterID).
		Str("order_id", order.ID).
		Time("until", until).
		Msg("account rented")

	return until, nil
}

// Extend adds bonus time to a RENTED lease. While the lease is live the bonus
// is additive to the remaining time; a lapsed-but-unswept lease restarts at
// now + bonus, falling back to the configured default when the bonus is zero.
// The warned flag resets so a fresh warning fires for the new end time.
func (s *LeaseService) Extend(ctx context.Context, accountID string, bonus time.Duration, order model.OrderRef) (time.Time, error) {
	until, err := s.accounts.ExtendRented(ctx, accountID, model.ExtendParams{
		Bonus:    bonus,
		Fallback: s.cfg.DefaultRent(),
		Order:    order,
	})
	if err != nil {
		return time.Time{}, err
	}

	log.Info().
		Str("account_id", accountID).
		Dur("bonus", bonus).
		Time("until", until).
		Msg("lease extended")

	return until, nil
}

// ExtendUntil replaces the expiry of a lapsed lease with an absolute
// timestamp. A still-live lease ignores the timestamp and keeps its expiry,
// so an operator cannot accidentally shrink a running lease.
func (s *LeaseService) ExtendUntil(ctx context.Context, accountID string, until time.Time, order model.OrderRef) (time.Time, error) {
	committed, err := s.accounts.ExtendRented(ctx, accountID, model.ExtendParams{
		Until:    &until,
		Fallback: s.cfg.DefaultRent(),
		Order:    order,
	})
	if err != nil {
		return time.Time{}, err
	}

	log.Info().
		Str("account_id", accountID).
		Time("until", committed).
		Msg("lease expiry set")

	return committed, nil
}

// Release transitions a RENTED account back to FREE, clearing all rental
// fields. Idempotent: a second release is a no-op. The outgoing occupant is
// notified exactly once, best-effort, and only for leases correlated to a
// real marketplace order.
func (s *LeaseService) Release(ctx context.Context, accountID string) (*model.ReleaseInfo, error) {
	info, err := s.accounts.MarkFree(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, nil
	}

	log.Info().
		Str("account_id", accountID).
		Str("renter_id", info.RenterID).
		Str("order_id", info.Order.ID).
		Msg("account released")

	if info.Order.Notifiable() {
		message := fmt.Sprintf("Аренда по заказу #%s завершена. Спасибо за заказ!", info.Order.ID)
		if err := s.notifier.Notify(ctx, info.RenterID, message); err != nil {
			log.Warn().Err(err).
				Str("account_id", accountID).
				Str("renter_id", info.RenterID).
				Msg("end-of-rental notification failed")
		}
	}

	return info, nil
}

// Get returns a snapshot of one account.
func (s *LeaseService) Get(ctx context.Context, accountID string) (*model.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if account == nil {
		return nil, nil
	}
	return account, nil
}
