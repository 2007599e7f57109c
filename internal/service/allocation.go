package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/capability"
	"github.com/steamrent/rental-server-go/internal/config"
	apperrors "github.com/steamrent/rental-server-go/internal/errors"
	"github.com/steamrent/rental-server-go/internal/model"
	"github.com/steamrent/rental-server-go/internal/repository"
)

// IssuedLease is one account handed to a buyer, with the committed expiry.
type IssuedLease struct {
	Account model.Account
	Until   time.Time
	Order   model.OrderRef
}

// AllocationResult describes how a purchase was fulfilled: freshly rented
// accounts, or one extended existing lease, plus any friend-mode shortfall.
type AllocationResult struct {
	Issued    []IssuedLease
	Extended  *IssuedLease
	Shortfall int
}

// AllocationService decides, for a purchase of N units, between fanning out
// across distinct accounts (friend mode) and extending a single lease.
// Precedence: friend-mode check first, existing-lease check second, shortfall
// fallback third.
type AllocationService struct {
	accounts   repository.AccountRepository
	friendMode *FriendModeService
	lease      *LeaseService
	scheduler  ExpiryScheduler
	guard      capability.GuardCodeFetcher
	notifier   capability.Notifier
	cfg        *config.Config
}

func NewAllocationService(
	accounts repository.AccountRepository,
	friendMode *FriendModeService,
	lease *LeaseService,
	scheduler ExpiryScheduler,
	guard capability.GuardCodeFetcher,
	notifier capability.Notifier,
	cfg *config.Config,
) *AllocationService {
	return &AllocationService{
		accounts:   accounts,
		friendMode: friendMode,
		lease:      lease,
		scheduler:  scheduler,
		guard:      guard,
		notifier:   notifier,
		cfg:        cfg,
	}
}

// Allocate fulfills a purchase of quantity units of perUnit time each.
func (s *AllocationService) Allocate(ctx context.Context, game, buyerID string, quantity int, perUnit time.Duration, order model.OrderRef) (*AllocationResult, error) {
	if quantity < 1 {
		quantity = 1
	}
	total := perUnit * time.Duration(quantity)

	friendActive := false
	if quantity > 1 {
		active, err := s.friendMode.IsActive(ctx, buyerID)
		if err != nil {
			log.Warn().Err(err).Str("buyer_id", buyerID).Msg("friend mode lookup failed, treating as inactive")
		} else {
			friendActive = active
		}
	}

	if friendActive {
		return s.allocateFanOut(ctx, game, buyerID, quantity, perUnit, total, order)
	}

	if existing, err := s.existingLease(ctx, game, buyerID, order); err != nil {
		return nil, err
	} else if existing != nil {
		extended, err := s.extendExisting(ctx, existing, total, order)
		if err != nil {
			return nil, err
		}
		return &AllocationResult{Extended: extended}, nil
	}

	issued, err := s.rentOne(ctx, game, buyerID, total, order)
	if err != nil {
		return nil, err
	}
	return &AllocationResult{Issued: []IssuedLease{*issued}}, nil
}

// allocateFanOut handles an armed friend-mode flag: N distinct accounts when
// stock allows, otherwise the flag is cleared and the purchase falls back to
// extending the buyer's existing lease, or to a partial fan-out with a
// shortfall notice.
func (s *AllocationService) allocateFanOut(ctx context.Context, game, buyerID string, quantity int, perUnit, total time.Duration, order model.OrderRef) (*AllocationResult, error) {
	free, err := s.accounts.CountFree(ctx, game)
	if err != nil {
		return nil, err
	}

	// Flag is consumed by this allocation regardless of the outcome.
	s.friendMode.Consume(ctx, buyerID)

	if free >= quantity {
		issued, err := s.fanOut(ctx, game, buyerID, quantity, perUnit, order)
		if err != nil {
			return nil, err
		}
		return &AllocationResult{Issued: issued}, nil
	}

	log.Info().
		Str("buyer_id", buyerID).
		Str("game", game).
		Int("requested", quantity).
		Int("free", free).
		Msg("friend mode shortfall")

	if existing, err := s.existingLease(ctx, game, buyerID, order); err != nil {
		return nil, err
	} else if existing != nil {
		extended, err := s.extendExisting(ctx, existing, total, order)
		if err != nil {
			return nil, err
		}
		return &AllocationResult{Extended: extended}, nil
	}

	if free == 0 {
		return nil, apperrors.NotFound("free account")
	}

	issued, err := s.fanOut(ctx, game, buyerID, free, perUnit, order)
	if err != nil {
		return nil, err
	}

	shortfall := quantity - len(issued)
	message := fmt.Sprintf("Свободных аккаунтов хватило только на %d из %d. Недостающие %d шт. будут компенсированы.", len(issued), quantity, shortfall)
	if err := s.notifier.Notify(ctx, buyerID, message); err != nil {
		log.Warn().Err(err).Str("buyer_id", buyerID).Msg("shortfall notification failed")
	}

	return &AllocationResult{Issued: issued, Shortfall: shortfall}, nil
}

// fanOut rents n distinct accounts, each under a derived child order
// reference so every unit tracks back to the purchase independently.
func (s *AllocationService) fanOut(ctx context.Context, game, buyerID string, n int, perUnit time.Duration, order model.OrderRef) ([]IssuedLease, error) {
	issued := make([]IssuedLease, 0, n)
	for len(issued) < n {
		account, err := s.accounts.FindFree(ctx, game)
		if err != nil {
			return issued, err
		}
		if account == nil {
			break
		}

		childOrder := order.Child(len(issued) + 1)
		until, err := s.lease.Rent(ctx, account.ID, buyerID, perUnit, childOrder)
		if apperrors.HasCode(err, apperrors.ErrCodeAlreadyRented) {
			// Lost the account to a concurrent rent; the next FindFree will
			// not return it again.
			continue
		}
		if err != nil {
			return issued, err
		}

		s.afterIssue(account, buyerID, until)
		issued = append(issued, IssuedLease{Account: *account, Until: until, Order: childOrder})
	}
	return issued, nil
}

func (s *AllocationService) rentOne(ctx context.Context, game, buyerID string, duration time.Duration, order model.OrderRef) (*IssuedLease, error) {
	for {
		account, err := s.accounts.FindFree(ctx, game)
		if err != nil {
			return nil, err
		}
		if account == nil {
			return nil, apperrors.NotFound("free account")
		}

		until, err := s.lease.Rent(ctx, account.ID, buyerID, duration, order)
		if apperrors.HasCode(err, apperrors.ErrCodeAlreadyRented) {
			continue
		}
		if err != nil {
			return nil, err
		}

		s.afterIssue(account, buyerID, until)
		return &IssuedLease{Account: *account, Until: until, Order: order}, nil
	}
}

func (s *AllocationService) extendExisting(ctx context.Context, account *model.Account, total time.Duration, order model.OrderRef) (*IssuedLease, error) {
	until, err := s.lease.Extend(ctx, account.ID, total, order)
	if err != nil {
		return nil, err
	}
	if account.RenterID != nil {
		s.scheduler.Schedule(account.ID, *account.RenterID, time.Until(until))
	}
	return &IssuedLease{Account: *account, Until: until, Order: order}, nil
}

// existingLease finds a RENTED account already correlated to this purchase:
// by marketplace order first, then by buyer and game.
func (s *AllocationService) existingLease(ctx context.Context, game, buyerID string, order model.OrderRef) (*model.Account, error) {
	if order.Kind == model.OrderRefExternal && order.ID != "" {
		account, err := s.accounts.FindRentedByOrder(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		if account != nil && account.RenterID != nil && *account.RenterID == buyerID {
			return account, nil
		}
	}

	account, err := s.accounts.FindRentedByRenter(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if account != nil && account.GameName == game {
		return account, nil
	}
	return nil, nil
}

// afterIssue arms the expiry watchers and kicks off the best-effort guard
// code fetch. The fetch runs detached: a missing code never fails or delays
// the allocation.
func (s *AllocationService) afterIssue(account *model.Account, buyerID string, until time.Time) {
	s.scheduler.Schedule(account.ID, buyerID, time.Until(until))

	if !account.GuardLookupEnabled || !account.HasMailbox() {
		return
	}
	if time.Until(until) <= s.cfg.MinRotationWindow() {
		// Lease too short for the code to still be useful by the time it
		// arrives.
		return
	}

	fetchAccount := *account
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GuardFetchTimeoutDur())
		defer cancel()

		code, err := s.guard.FetchCode(ctx, &fetchAccount, capability.CodeModeLogin)
		if err != nil || code == "" {
			log.Warn().Err(err).
				Str("account_id", fetchAccount.ID).
				Msg("guard code unavailable")
			return
		}

		message := fmt.Sprintf("Код подтверждения Steam Guard: %s", code)
		if err := s.notifier.Notify(ctx, buyerID, message); err != nil {
			log.Warn().Err(err).
				Str("account_id", fetchAccount.ID).
				Str("buyer_id", buyerID).
				Msg("guard code delivery failed")
		}
	}()
}
