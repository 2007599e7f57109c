package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steamrent/rental-server-go/internal/database"
	apperrors "github.com/steamrent/rental-server-go/internal/errors"
	"github.com/steamrent/rental-server-go/internal/model"
)

func newMockRepo(t *testing.T) (AccountRepository, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	db := &database.DB{DB: sqlx.NewDb(mockDB, "sqlmock")}
	return NewAccountRepository(db), mock
}

func TestMarkRented(t *testing.T) {
	ctx := context.Background()
	until := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	t.Run("transitions a free account and returns the committed expiry", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery("UPDATE accounts SET").
			WithArgs("acc-1", "buyer-1", until, "ORD-1", false).
			WillReturnRows(sqlmock.NewRows([]string{"rented_until"}).AddRow(until))

		got, err := repo.MarkRented(ctx, "acc-1", model.RentParams{
			RenterID: "buyer-1",
			Until:    until,
			Order:    model.ExternalOrder("ORD-1"),
		})
		require.NoError(t, err)
		assert.True(t, got.Equal(until))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports ALREADY_RENTED when the status guard rejects", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery("UPDATE accounts SET").
			WillReturnRows(sqlmock.NewRows([]string{"rented_until"}))
		mock.ExpectQuery("SELECT \\* FROM accounts WHERE id").
			WillReturnRows(rentedAccountRows(until))

		_, err := repo.MarkRented(ctx, "acc-1", model.RentParams{
			RenterID: "buyer-2",
			Until:    until,
			Order:    model.ExternalOrder("ORD-2"),
		})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeAlreadyRented))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports NOT_FOUND for an unknown account", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery("UPDATE accounts SET").
			WillReturnRows(sqlmock.NewRows([]string{"rented_until"}))
		mock.ExpectQuery("SELECT \\* FROM accounts WHERE id").
			WillReturnRows(accountColumns())

		_, err := repo.MarkRented(ctx, "nope", model.RentParams{
			RenterID: "buyer-1",
			Until:    until,
			Order:    model.ExternalOrder("ORD-3"),
		})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestExtendRented(t *testing.T) {
	ctx := context.Background()

	t.Run("returns the merged expiry", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		merged := time.Now().Add(90 * time.Minute).UTC().Truncate(time.Second)

		mock.ExpectQuery("UPDATE accounts SET").
			WithArgs("acc-1", int64(1800), nil, int64(3600), "ORD-9", false).
			WillReturnRows(sqlmock.NewRows([]string{"rented_until"}).AddRow(merged))

		got, err := repo.ExtendRented(ctx, "acc-1", model.ExtendParams{
			Bonus:    30 * time.Minute,
			Fallback: time.Hour,
			Order:    model.ExternalOrder("ORD-9"),
		})
		require.NoError(t, err)
		assert.True(t, got.Equal(merged))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports NOT_RENTED for a free account", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery("UPDATE accounts SET").
			WillReturnRows(sqlmock.NewRows([]string{"rented_until"}))
		mock.ExpectQuery("SELECT \\* FROM accounts WHERE id").
			WillReturnRows(freeAccountRows())

		_, err := repo.ExtendRented(ctx, "acc-1", model.ExtendParams{Fallback: time.Hour})
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotRented))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMarkFree(t *testing.T) {
	ctx := context.Background()

	t.Run("captures the pre-reset occupant", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT renter_id, order_id, order_synthetic FROM accounts").
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"renter_id", "order_id", "order_synthetic"}).
				AddRow("buyer-1", "ORD-1", false))
		mock.ExpectExec("UPDATE accounts SET").
			WithArgs("acc-1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		info, err := repo.MarkFree(ctx, "acc-1")
		require.NoError(t, err)
		require.NotNil(t, info)
		assert.Equal(t, "buyer-1", info.RenterID)
		assert.Equal(t, model.ExternalOrder("ORD-1"), info.Order)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("is a no-op on an account that is already free", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT renter_id, order_id, order_synthetic FROM accounts").
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"renter_id", "order_id", "order_synthetic"}))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("acc-1").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectCommit()

		info, err := repo.MarkFree(ctx, "acc-1")
		require.NoError(t, err)
		assert.Nil(t, info)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("reports NOT_FOUND for an unknown account", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT renter_id, order_id, order_synthetic FROM accounts").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"renter_id", "order_id", "order_synthetic"}))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs("nope").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		mock.ExpectRollback()

		_, err := repo.MarkFree(ctx, "nope")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeNotFound))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSetWarned(t *testing.T) {
	ctx := context.Background()

	t.Run("claims the warning once", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectExec("UPDATE accounts SET warned = TRUE").
			WithArgs("acc-1", "buyer-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		claimed, err := repo.SetWarned(ctx, "acc-1", "buyer-1")
		require.NoError(t, err)
		assert.True(t, claimed)
	})

	t.Run("refuses when already warned or the lease changed hands", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectExec("UPDATE accounts SET warned = TRUE").
			WithArgs("acc-1", "buyer-2").
			WillReturnResult(sqlmock.NewResult(0, 0))

		claimed, err := repo.SetWarned(ctx, "acc-1", "buyer-2")
		require.NoError(t, err)
		assert.False(t, claimed)
	})
}

func TestClaimBonus(t *testing.T) {
	ctx := context.Background()

	t.Run("returns nil when no live unclaimed lease matches", func(t *testing.T) {
		repo, mock := newMockRepo(t)

		mock.ExpectQuery("UPDATE accounts SET bonus_granted = TRUE").
			WithArgs("ORD-1").
			WillReturnRows(accountColumns())

		account, err := repo.ClaimBonus(ctx, "ORD-1")
		require.NoError(t, err)
		assert.Nil(t, account)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	t.Run("refuses to delete a rented account", func(t *testing.T) {
		repo, mock := newMockRepo(t)
		until := time.Now().Add(time.Hour)

		mock.ExpectExec("DELETE FROM accounts").
			WithArgs("acc-1").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT \\* FROM accounts WHERE id").
			WillReturnRows(rentedAccountRows(until))

		err := repo.Delete(ctx, "acc-1")
		assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConflict))
	})
}

func accountColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "login", "password", "game_name", "status",
		"renter_id", "rented_until", "order_id", "order_synthetic",
		"warned", "bonus_granted", "guard_lookup_enabled",
		"mailbox_login", "mailbox_password", "imap_host",
		"created_at", "updated_at",
	})
}

func rentedAccountRows(until time.Time) *sqlmock.Rows {
	now := time.Now()
	return accountColumns().AddRow(
		"acc-1", "steamuser", "secret", "Elden Ring", "rented",
		"buyer-1", until, "ORD-1", false,
		false, false, false,
		nil, nil, nil,
		now, now,
	)
}

func freeAccountRows() *sqlmock.Rows {
	now := time.Now()
	return accountColumns().AddRow(
		"acc-1", "steamuser", "secret", "Elden Ring", "free",
		nil, nil, nil, false,
		false, false, false,
		nil, nil, nil,
		now, now,
	)
}
