package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/steamrent/rental-server-go/internal/database"
	apperrors "github.com/steamrent/rental-server-go/internal/errors"
	"github.com/steamrent/rental-server-go/internal/model"
)

// AccountRepository is the durable account store. Every mutation is a single
// statement or a FOR UPDATE transaction, so concurrent callers on the same
// account id serialize on the row lock and the lease merge rule always runs
// against the committed state, never a stale read.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*model.Account, error)
	FindFree(ctx context.Context, gameName string) (*model.Account, error)
	CountFree(ctx context.Context, gameName string) (int, error)
	FindRentedByRenter(ctx context.Context, renterID string) (*model.Account, error)
	FindRentedByOrder(ctx context.Context, orderID string) (*model.Account, error)
	ListRented(ctx context.Context) ([]model.Account, error)
	ListAll(ctx context.Context) ([]model.Account, error)
	DistinctFreeGames(ctx context.Context) ([]string, error)
	// FreeCountLike matches a game by substring for availability queries and
	// returns the canonical game name alongside the free-account count.
	FreeCountLike(ctx context.Context, gameQuery string) (string, int, error)
	// NextReleaseLike returns the rented account with the soonest expiry for a
	// game substring, or nil when nothing matching is rented.
	NextReleaseLike(ctx context.Context, gameQuery string) (*model.Account, error)

	Create(ctx context.Context, params model.CreateAccountParams) (*model.Account, error)
	Delete(ctx context.Context, id string) error

	// MarkRented performs the FREE -> RENTED transition, guarded on the
	// current status. Returns the committed expiry.
	MarkRented(ctx context.Context, id string, params model.RentParams) (time.Time, error)
	// ExtendRented performs the RENTED -> RENTED merge: additive to the
	// current expiry while the lease is live, replace-or-fallback once lapsed.
	// Returns the committed expiry.
	ExtendRented(ctx context.Context, id string, params model.ExtendParams) (time.Time, error)
	// MarkFree clears all rental fields. Idempotent: releasing a FREE account
	// is a no-op and returns nil info. The returned snapshot carries the
	// pre-reset occupant and order reference.
	MarkFree(ctx context.Context, id string) (*model.ReleaseInfo, error)
	// SetWarned claims the one end-of-lease warning for the current occupant.
	// Returns false when the flag was already set or the lease changed hands.
	SetWarned(ctx context.Context, id, renterID string) (bool, error)
	// ClaimBonus atomically claims the once-per-order review bonus for a live
	// lease. Returns nil when no live unclaimed lease matches the order.
	ClaimBonus(ctx context.Context, orderID string) (*model.Account, error)
	UpdatePassword(ctx context.Context, id, password string) error
	SetGuardLookup(ctx context.Context, id string, enabled bool) error
}

type accountRepo struct {
	db *database.DB
}

func NewAccountRepository(db *database.DB) AccountRepository {
	return &accountRepo{db: db}
}

func (r *accountRepo) GetByID(ctx context.Context, id string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts WHERE id = $1
	`, id)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) FindFree(ctx context.Context, gameName string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts
		WHERE game_name = $1 AND status = 'free'
		LIMIT 1
	`, gameName)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) CountFree(ctx context.Context, gameName string) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM accounts WHERE game_name = $1 AND status = 'free'
	`, gameName)
	return count, err
}

func (r *accountRepo) FindRentedByRenter(ctx context.Context, renterID string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts
		WHERE status = 'rented' AND renter_id = $1
		LIMIT 1
	`, renterID)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) FindRentedByOrder(ctx context.Context, orderID string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts
		WHERE status = 'rented' AND order_id = $1
		LIMIT 1
	`, orderID)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) ListRented(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := r.db.SelectContext(ctx, &accounts, `
		SELECT * FROM accounts WHERE status = 'rented' ORDER BY rented_until ASC
	`)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepo) ListAll(ctx context.Context) ([]model.Account, error) {
	var accounts []model.Account
	err := r.db.SelectContext(ctx, &accounts, `
		SELECT * FROM accounts ORDER BY game_name, created_at
	`)
	if err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *accountRepo) DistinctFreeGames(ctx context.Context) ([]string, error) {
	var games []string
	err := r.db.SelectContext(ctx, &games, `
		SELECT DISTINCT game_name FROM accounts WHERE status = 'free' ORDER BY game_name
	`)
	if err != nil {
		return nil, err
	}
	return games, nil
}

func (r *accountRepo) FreeCountLike(ctx context.Context, gameQuery string) (string, int, error) {
	var row struct {
		GameName string `db:"game_name"`
		Count    int    `db:"count"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT game_name, COUNT(*) AS count FROM accounts
		WHERE status = 'free' AND LOWER(game_name) LIKE '%' || LOWER($1) || '%'
		GROUP BY game_name
		LIMIT 1
	`, gameQuery)
	if errors.Is(err, sql.ErrNoRows) {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, err
	}
	return row.GameName, row.Count, nil
}

func (r *accountRepo) NextReleaseLike(ctx context.Context, gameQuery string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		SELECT * FROM accounts
		WHERE status = 'rented' AND LOWER(game_name) LIKE '%' || LOWER($1) || '%'
		ORDER BY rented_until ASC
		LIMIT 1
	`, gameQuery)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) Create(ctx context.Context, params model.CreateAccountParams) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		INSERT INTO accounts (id, login, password, game_name, guard_lookup_enabled, mailbox_login, mailbox_password, imap_host)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING *
	`, uuid.NewString(), params.Login, params.Password, params.GameName,
		params.GuardLookupEnabled, params.MailboxLogin, params.MailboxPassword, params.IMAPHost)
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// Delete removes an account, refusing while it is rented.
func (r *accountRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM accounts WHERE id = $1 AND status = 'free'
	`, id)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	existing, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return apperrors.NotFound("account")
	}
	return apperrors.New(apperrors.ErrCodeConflict, "Account is rented and cannot be deleted")
}

func (r *accountRepo) MarkRented(ctx context.Context, id string, params model.RentParams) (time.Time, error) {
	var until time.Time
	err := database.WithRetry(ctx, func() error {
		return r.db.GetContext(ctx, &until, `
			UPDATE accounts SET
				status = 'rented',
				renter_id = $2,
				rented_until = $3,
				order_id = $4,
				order_synthetic = $5,
				warned = FALSE,
				bonus_granted = FALSE,
				updated_at = now()
			WHERE id = $1 AND status = 'free'
			RETURNING rented_until
		`, id, params.RenterID, params.Until, orderID(params.Order), params.Order.Kind == model.OrderRefSynthetic)
	})
	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return time.Time{}, getErr
		}
		if existing == nil {
			return time.Time{}, apperrors.NotFound("account")
		}
		return time.Time{}, apperrors.AlreadyRented(id)
	}
	if err != nil {
		return time.Time{}, err
	}
	return until, nil
}

func (r *accountRepo) ExtendRented(ctx context.Context, id string, params model.ExtendParams) (time.Time, error) {
	// The merge lives in the statement itself so two racing extends both land:
	// the second UPDATE waits on the row lock and reads the expiry the first
	// one committed.
	var until time.Time
	err := database.WithRetry(ctx, func() error {
		return r.db.GetContext(ctx, &until, `
			UPDATE accounts SET
				rented_until = CASE
					WHEN rented_until IS NOT NULL AND rented_until > now()
						THEN rented_until + ($2 * interval '1 second')
					ELSE COALESCE(
						$3::timestamptz,
						now() + (CASE WHEN $2 > 0 THEN $2 ELSE $4 END) * interval '1 second'
					)
				END,
				order_id = COALESCE($5, order_id),
				order_synthetic = CASE WHEN $5 IS NULL THEN order_synthetic ELSE $6 END,
				warned = FALSE,
				updated_at = now()
			WHERE id = $1 AND status = 'rented'
			RETURNING rented_until
		`, id, int64(params.Bonus.Seconds()), params.Until, int64(params.Fallback.Seconds()),
			orderID(params.Order), params.Order.Kind == model.OrderRefSynthetic)
	})
	if errors.Is(err, sql.ErrNoRows) {
		existing, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return time.Time{}, getErr
		}
		if existing == nil {
			return time.Time{}, apperrors.NotFound("account")
		}
		return time.Time{}, apperrors.NotRented(id)
	}
	if err != nil {
		return time.Time{}, err
	}
	return until, nil
}

func (r *accountRepo) MarkFree(ctx context.Context, id string) (*model.ReleaseInfo, error) {
	var info *model.ReleaseInfo
	err := database.WithRetry(ctx, func() error {
		info = nil
		return r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
			var prior struct {
				RenterID       *string `db:"renter_id"`
				OrderID        *string `db:"order_id"`
				OrderSynthetic bool    `db:"order_synthetic"`
			}
			err := tx.GetContext(ctx, &prior, `
				SELECT renter_id, order_id, order_synthetic FROM accounts
				WHERE id = $1 AND status = 'rented'
				FOR UPDATE
			`, id)
			if errors.Is(err, sql.ErrNoRows) {
				// Already free, or missing. Distinguish so callers see NotFound
				// for bogus ids but a clean no-op for double releases.
				var exists bool
				if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, id); err != nil {
					return err
				}
				if !exists {
					return apperrors.NotFound("account")
				}
				return nil
			}
			if err != nil {
				return err
			}

			if _, err := tx.ExecContext(ctx, `
				UPDATE accounts SET
					status = 'free',
					renter_id = NULL,
					rented_until = NULL,
					order_id = NULL,
					order_synthetic = FALSE,
					warned = FALSE,
					bonus_granted = FALSE,
					updated_at = now()
				WHERE id = $1
			`, id); err != nil {
				return err
			}

			if prior.RenterID != nil {
				order := model.OrderRef{}
				if prior.OrderID != nil {
					if prior.OrderSynthetic {
						order = model.SyntheticOrder(*prior.OrderID)
					} else {
						order = model.ExternalOrder(*prior.OrderID)
					}
				}
				info = &model.ReleaseInfo{RenterID: *prior.RenterID, Order: order}
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return info, nil
}

func (r *accountRepo) SetWarned(ctx context.Context, id, renterID string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET warned = TRUE, updated_at = now()
		WHERE id = $1 AND status = 'rented' AND renter_id = $2 AND warned = FALSE
	`, id, renterID)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return rows > 0, nil
}

func (r *accountRepo) ClaimBonus(ctx context.Context, orderID string) (*model.Account, error) {
	var account model.Account
	err := r.db.GetContext(ctx, &account, `
		UPDATE accounts SET bonus_granted = TRUE, updated_at = now()
		WHERE order_id = $1 AND status = 'rented' AND bonus_granted = FALSE AND rented_until > now()
		RETURNING *
	`, orderID)
	return HandleNotFound(&account, err)
}

func (r *accountRepo) UpdatePassword(ctx context.Context, id, password string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET password = $2, updated_at = now() WHERE id = $1
	`, id, password)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.NotFound("account")
	}
	return nil
}

func (r *accountRepo) SetGuardLookup(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts SET guard_lookup_enabled = $2, updated_at = now() WHERE id = $1
	`, id, enabled)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return apperrors.NotFound("account")
	}
	return nil
}

func orderID(ref model.OrderRef) *string {
	if ref.ID == "" {
		return nil
	}
	id := ref.ID
	return &id
}
