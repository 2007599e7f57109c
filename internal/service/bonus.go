package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/capability"
	"github.com/steamrent/rental-server-go/internal/config"
	"github.com/steamrent/rental-server-go/internal/repository"
)

// Marketplace convention: 4 and 5 star reviews earn the bonus.
const positiveReviewThreshold = 4

// BonusService grants the review bonus: one extension per order, only while
// the lease is still live. The claim is a conditional store write, so two
// reviews for the same order can never both land.
type BonusService struct {
	accounts  repository.AccountRepository
	lease     *LeaseService
	scheduler ExpiryScheduler
	notifier  capability.Notifier
	cfg       *config.Config
}

func NewBonusService(
	accounts repository.AccountRepository,
	lease *LeaseService,
	scheduler ExpiryScheduler,
	notifier capability.Notifier,
	cfg *config.Config,
) *BonusService {
	return &BonusService{
		accounts:  accounts,
		lease:     lease,
		scheduler: scheduler,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// OnPositiveReview applies the bonus for an order. Returns true when the
// extension was granted. Ratings below the threshold, unknown or closed
// orders, lapsed leases and repeat reviews are all quiet no-ops.
func (s *BonusService) OnPositiveReview(ctx context.Context, orderID string, rating int) (bool, error) {
	if orderID == "" || rating < positiveReviewThreshold {
		return false, nil
	}

	account, err := s.accounts.ClaimBonus(ctx, orderID)
	if err != nil {
		return false, err
	}
	if account == nil {
		return false, nil
	}

	until, err := s.lease.Extend(ctx, account.ID, s.cfg.ReviewBonus(), account.OrderRef())
	if err != nil {
		// Claimed but not extended: the flag stays set so the order cannot be
		// granted twice. Surfaces to the operator via logs.
		log.Error().Err(err).
			Str("account_id", account.ID).
			Str("order_id", orderID).
			Msg("bonus claimed but extend failed")
		return false, err
	}

	log.Info().
		Str("account_id", account.ID).
		Str("order_id", orderID).
		Int("rating", rating).
		Time("until", until).
		Msg("review bonus granted")

	if account.RenterID != nil {
		s.scheduler.Schedule(account.ID, *account.RenterID, time.Until(until))

		message := fmt.Sprintf("Спасибо за отзыв! Аренда продлена на %d минут, до %s.",
			int(s.cfg.ReviewBonus().Minutes()), until.Format("15:04:05 02.01.2006"))
		if err := s.notifier.Notify(ctx, *account.RenterID, message); err != nil {
			log.Warn().Err(err).
				Str("renter_id", *account.RenterID).
				Msg("bonus notification failed")
		}
	}

	return true, nil
}
