package service

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/config"
	"github.com/steamrent/rental-server-go/internal/repository"
)

// FriendModeService manages the short-lived per-buyer flag that switches a
// multi-unit purchase from one extended lease to a fan-out across distinct
// accounts. Flags auto-expire: the active window is enforced on read, and the
// cleanup job soft-deactivates and later deletes stale rows.
type FriendModeService struct {
	flags repository.FriendModeRepository
	cfg   *config.Config
}

func NewFriendModeService(flags repository.FriendModeRepository, cfg *config.Config) *FriendModeService {
	return &FriendModeService{flags: flags, cfg: cfg}
}

func (s *FriendModeService) Activate(ctx context.Context, buyerID string) error {
	if err := s.flags.Activate(ctx, buyerID); err != nil {
		return err
	}
	log.Info().Str("buyer_id", buyerID).Msg("friend mode activated")
	return nil
}

// IsActive reports whether the buyer armed friend mode within the active
// window. Rows past the window count as inactive even before the sweep
// reaches them.
func (s *FriendModeService) IsActive(ctx context.Context, buyerID string) (bool, error) {
	cutoff := time.Now().Add(-s.cfg.FriendModeTTL())
	return s.flags.IsActive(ctx, buyerID, cutoff)
}

// Consume clears the flag after an allocation used (or decided against) it.
func (s *FriendModeService) Consume(ctx context.Context, buyerID string) {
	if err := s.flags.Clear(ctx, buyerID); err != nil {
		log.Warn().Err(err).Str("buyer_id", buyerID).Msg("failed to clear friend mode flag")
	}
}

// Sweep soft-deactivates flags past the active window and hard-deletes rows
// older than the retention age. Called periodically by the cleanup job.
func (s *FriendModeService) Sweep(ctx context.Context) {
	now := time.Now()

	deactivated, err := s.flags.DeactivateStale(ctx, now.Add(-s.cfg.FriendModeTTL()))
	if err != nil {
		log.Error().Err(err).Msg("friend mode deactivation sweep failed")
	}

	deleted, err := s.flags.DeleteOld(ctx, now.Add(-config.FriendModeHardDeleteAge))
	if err != nil {
		log.Error().Err(err).Msg("friend mode deletion sweep failed")
	}

	if deactivated > 0 || deleted > 0 {
		log.Info().
			Int64("deactivated", deactivated).
			Int64("deleted", deleted).
			Msg("friend mode flags swept")
	}
}
