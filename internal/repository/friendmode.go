package repository

import (
	"context"
	"time"

	"github.com/steamrent/rental-server-go/internal/database"
	"github.com/steamrent/rental-server-go/internal/model"
)

// FriendModeRepository tracks per-buyer friend-mode flags. A flag is consumed
// by the next multi-unit purchase; stale flags are deactivated and eventually
// deleted by the cleanup job.
type FriendModeRepository interface {
	// Activate arms friend mode for a buyer, refreshing the window if a flag
	// already exists.
	Activate(ctx context.Context, buyerID string) error
	// IsActive reports whether the buyer armed friend mode after the cutoff.
	IsActive(ctx context.Context, buyerID string, cutoff time.Time) (bool, error)
	Clear(ctx context.Context, buyerID string) error
	Get(ctx context.Context, buyerID string) (*model.FriendModeFlag, error)
	// DeactivateStale soft-disables flags armed before the cutoff so a later
	// purchase does not pick up a forgotten request.
	DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error)
	// DeleteOld removes long-dead rows entirely.
	DeleteOld(ctx context.Context, cutoff time.Time) (int64, error)
}

type friendModeRepo struct {
	db *database.DB
}

func NewFriendModeRepository(db *database.DB) FriendModeRepository {
	return &friendModeRepo{db: db}
}

func (r *friendModeRepo) Activate(ctx context.Context, buyerID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO friend_mode_flags (buyer_id, activated_at, active)
		VALUES ($1, now(), TRUE)
		ON CONFLICT (buyer_id)
		DO UPDATE SET activated_at = now(), active = TRUE
	`, buyerID)
	return err
}

func (r *friendModeRepo) IsActive(ctx context.Context, buyerID string, cutoff time.Time) (bool, error) {
	var active bool
	err := r.db.GetContext(ctx, &active, `
		SELECT EXISTS (
			SELECT 1 FROM friend_mode_flags
			WHERE buyer_id = $1 AND active AND activated_at > $2
		)
	`, buyerID, cutoff)
	return active, err
}

func (r *friendModeRepo) Clear(ctx context.Context, buyerID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE friend_mode_flags SET active = FALSE WHERE buyer_id = $1
	`, buyerID)
	return err
}

func (r *friendModeRepo) Get(ctx context.Context, buyerID string) (*model.FriendModeFlag, error) {
	var flag model.FriendModeFlag
	err := r.db.GetContext(ctx, &flag, `
		SELECT * FROM friend_mode_flags WHERE buyer_id = $1
	`, buyerID)
	return HandleNotFound(&flag, err)
}

func (r *friendModeRepo) DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE friend_mode_flags SET active = FALSE
		WHERE active AND activated_at <= $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *friendModeRepo) DeleteOld(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM friend_mode_flags WHERE activated_at <= $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
