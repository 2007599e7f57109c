package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/capability"
	"github.com/steamrent/rental-server-go/internal/config"
	"github.com/steamrent/rental-server-go/internal/model"
	"github.com/steamrent/rental-server-go/internal/service"
	"github.com/steamrent/rental-server-go/internal/util"
)

// watcherStore is the slice of the account repository the watchers need.
type watcherStore interface {
	GetByID(ctx context.Context, id string) (*model.Account, error)
	ListRented(ctx context.Context) ([]model.Account, error)
	SetWarned(ctx context.Context, id, renterID string) (bool, error)
	UpdatePassword(ctx context.Context, id, password string) error
}

// leaseReleaser releases a lease and notifies the outgoing occupant.
type leaseReleaser interface {
	Release(ctx context.Context, accountID string) (*model.ReleaseInfo, error)
}

const watcherOpTimeout = 10 * time.Second

// ExpiryWatcher runs two goroutines per active lease: a warning activity that
// fires the 10-minutes-left notice, and a completion activity that rotates
// credentials at expiry and releases the account. There is no cancel API;
// both activities re-check the account state immediately before acting, so a
// manual release or an extension makes them no-op or keep waiting.
type ExpiryWatcher struct {
	accounts watcherStore
	lease    leaseReleaser
	rotator  capability.CredentialRotator
	notifier capability.Notifier

	warnLead          time.Duration
	poll              time.Duration
	minRotationWindow time.Duration
	rotationTimeout   time.Duration
	rotationBackoff   time.Duration

	done chan struct{}
	wg   sync.WaitGroup
}

var _ service.ExpiryScheduler = (*ExpiryWatcher)(nil)

func NewExpiryWatcher(
	accounts watcherStore,
	lease leaseReleaser,
	rotator capability.CredentialRotator,
	notifier capability.Notifier,
	cfg *config.Config,
) *ExpiryWatcher {
	return &ExpiryWatcher{
		accounts:          accounts,
		lease:             lease,
		rotator:           rotator,
		notifier:          notifier,
		warnLead:          cfg.WarnLead(),
		poll:              cfg.ExpiryPoll(),
		minRotationWindow: cfg.MinRotationWindow(),
		rotationTimeout:   cfg.RotationTimeout(),
		rotationBackoff:   config.RotationRetryBackoff,
		done:              make(chan struct{}),
	}
}

// Schedule arms both watchers for a lease with the given remaining time.
// Called on every rent and extend; a superseded pair simply observes the new
// state and steps aside.
func (w *ExpiryWatcher) Schedule(accountID, renterID string, remaining time.Duration) {
	w.wg.Add(2)
	go w.warningWatch(accountID, renterID, remaining)
	go w.completionWatch(accountID, renterID, remaining)

	log.Debug().
		Str("account_id", accountID).
		Str("renter_id", renterID).
		Dur("remaining", remaining).
		Msg("expiry watchers scheduled")
}

// Recover rebuilds watchers after a restart. Leases that lapsed while the
// process was down are released immediately; rotation is assumed to have
// happened, which is a reconciliation convenience, not a security guarantee.
func (w *ExpiryWatcher) Recover(ctx context.Context) error {
	rented, err := w.accounts.ListRented(ctx)
	if err != nil {
		return fmt.Errorf("list rented accounts: %w", err)
	}

	now := time.Now()
	rescheduled, released := 0, 0

	for _, account := range rented {
		remaining := account.Remaining(now)
		if remaining <= 0 {
			if _, err := w.lease.Release(ctx, account.ID); err != nil {
				log.Error().Err(err).Str("account_id", account.ID).Msg("recovery release failed")
				continue
			}
			released++
			continue
		}
		if account.RenterID == nil {
			continue
		}
		w.Schedule(account.ID, *account.RenterID, remaining)
		rescheduled++
	}

	log.Info().
		Int("rescheduled", rescheduled).
		Int("released", released).
		Msg("expiry watchers recovered")
	return nil
}

// Stop signals all watchers and waits for them to exit.
func (w *ExpiryWatcher) Stop() {
	close(w.done)
	w.wg.Wait()
	log.Info().Msg("expiry watchers stopped")
}

func (w *ExpiryWatcher) warningWatch(accountID, renterID string, remaining time.Duration) {
	defer w.wg.Done()

	if wait := remaining - w.warnLead; wait > 0 {
		if !w.sleep(wait) {
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), watcherOpTimeout)
	defer cancel()

	account, err := w.accounts.GetByID(ctx, accountID)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("warning watcher read failed")
		return
	}
	if account == nil || !account.IsRented() || account.RenterID == nil || *account.RenterID != renterID {
		return
	}
	left := account.Remaining(time.Now())
	if account.Warned || left <= 0 || left > w.warnLead {
		// Extended in the meantime; the extend scheduled a fresh pair.
		return
	}

	claimed, err := w.accounts.SetWarned(ctx, accountID, renterID)
	if err != nil {
		log.Error().Err(err).Str("account_id", accountID).Msg("warning claim failed")
		return
	}
	if !claimed {
		return
	}

	message := fmt.Sprintf("До конца аренды осталось %d минут. Не забудьте выйти из аккаунта.", int(left.Minutes())+1)
	if err := w.notifier.Notify(ctx, renterID, message); err != nil {
		log.Warn().Err(err).
			Str("account_id", accountID).
			Str("renter_id", renterID).
			Msg("end-of-lease warning failed to send")
	}
}

func (w *ExpiryWatcher) completionWatch(accountID, renterID string, remaining time.Duration) {
	defer w.wg.Done()

	// Whether rotation may be skipped is decided by the remaining time at
	// scheduling: a lease this close to its end is not worth blocking on an
	// unconfirmed rotation.
	skippableRotation := remaining <= w.minRotationWindow

	for {
		ctx, cancel := context.WithTimeout(context.Background(), watcherOpTimeout)
		account, err := w.accounts.GetByID(ctx, accountID)
		cancel()
		if err != nil {
			log.Error().Err(err).Str("account_id", accountID).Msg("completion watcher read failed")
			if !w.sleep(w.poll) {
				return
			}
			continue
		}
		if account == nil || !account.IsRented() || account.RenterID == nil || *account.RenterID != renterID {
			return
		}

		left := account.Remaining(time.Now())
		if left <= 0 {
			w.complete(account, skippableRotation)
			return
		}

		wait := w.poll
		if left < wait {
			wait = left
		}
		if !w.sleep(wait) {
			return
		}
	}
}

// complete runs the end-of-lease sequence: rotate credentials, then release.
// A failed rotation leaves the account RENTED with a past expiry — a visible
// stuck state for the operator — unless the lease was too short to bother.
func (w *ExpiryWatcher) complete(account *model.Account, skippableRotation bool) {
	rotated := w.rotate(account)

	if !rotated && !skippableRotation {
		log.Error().
			Str("account_id", account.ID).
			Msg("rotation failed, account left rented pending operator intervention")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), watcherOpTimeout)
	defer cancel()

	if _, err := w.lease.Release(ctx, account.ID); err != nil {
		log.Error().Err(err).Str("account_id", account.ID).Msg("release after expiry failed")
	}
}

// rotate generates a new password and drives the rotation capability, with
// one retry after a short backoff. On success the new secret is persisted.
func (w *ExpiryWatcher) rotate(account *model.Account) bool {
	newPassword := util.GeneratePassword(config.RotationPasswordLength)

	for attempt := 1; attempt <= 2; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.rotationTimeout)
		err := w.rotator.Rotate(ctx, account, newPassword)
		cancel()

		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), watcherOpTimeout)
			defer cancel()
			if err := w.accounts.UpdatePassword(ctx, account.ID, newPassword); err != nil {
				log.Error().Err(err).Str("account_id", account.ID).Msg("failed to persist rotated password")
			}
			return true
		}

		log.Warn().Err(err).
			Str("account_id", account.ID).
			Int("attempt", attempt).
			Msg("credential rotation failed")

		if attempt == 1 && !w.sleep(w.rotationBackoff) {
			return false
		}
	}
	return false
}

func (w *ExpiryWatcher) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-w.done:
		return false
	case <-timer.C:
		return true
	}
}
