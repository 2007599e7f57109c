package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBonusService(store *fakeAccountStore, notifier *fakeNotifier, scheduler *fakeScheduler) *BonusService {
	cfg := testConfig()
	lease := NewLeaseService(store, notifier, cfg)
	return NewBonusService(store, lease, scheduler, notifier, cfg)
}

func TestOnPositiveReview(t *testing.T) {
	ctx := context.Background()

	t.Run("extends the lease once and reschedules the watchers", func(t *testing.T) {
		store := newFakeAccountStore()
		until := time.Now().Add(time.Hour)
		store.addRented("acc-1", "Elden Ring", "buyer-1", "ORD-1", until)
		notifier := &fakeNotifier{}
		scheduler := &fakeScheduler{}
		bonus := newBonusService(store, notifier, scheduler)

		granted, err := bonus.OnPositiveReview(ctx, "ORD-1", 5)
		require.NoError(t, err)
		assert.True(t, granted)

		got := store.snapshot("acc-1")
		assert.True(t, got.BonusGranted)
		assert.True(t, got.RentedUntil.Equal(until.Add(30*time.Minute)))

		require.Len(t, scheduler.calls(), 1)
		assert.Equal(t, "acc-1", scheduler.calls()[0].AccountID)
		require.Len(t, notifier.sent(), 1)
		assert.Equal(t, "buyer-1", notifier.sent()[0].Recipient)
	})

	t.Run("second review for the same order is a no-op", func(t *testing.T) {
		store := newFakeAccountStore()
		until := time.Now().Add(time.Hour)
		store.addRented("acc-1", "Elden Ring", "buyer-1", "ORD-1", until)
		bonus := newBonusService(store, &fakeNotifier{}, &fakeScheduler{})

		granted, err := bonus.OnPositiveReview(ctx, "ORD-1", 5)
		require.NoError(t, err)
		require.True(t, granted)
		afterFirst := *store.snapshot("acc-1").RentedUntil

		granted, err = bonus.OnPositiveReview(ctx, "ORD-1", 5)
		require.NoError(t, err)
		assert.False(t, granted)
		assert.True(t, store.snapshot("acc-1").RentedUntil.Equal(afterFirst),
			"expiry must not move on a repeat review")
	})

	t.Run("low rating is a no-op", func(t *testing.T) {
		store := newFakeAccountStore()
		store.addRented("acc-1", "Elden Ring", "buyer-1", "ORD-1", time.Now().Add(time.Hour))
		bonus := newBonusService(store, &fakeNotifier{}, &fakeScheduler{})

		granted, err := bonus.OnPositiveReview(ctx, "ORD-1", 3)
		require.NoError(t, err)
		assert.False(t, granted)
		assert.False(t, store.snapshot("acc-1").BonusGranted)
	})

	t.Run("lapsed lease is not resurrected", func(t *testing.T) {
		store := newFakeAccountStore()
		store.addRented("acc-1", "Elden Ring", "buyer-1", "ORD-1", time.Now().Add(-time.Minute))
		bonus := newBonusService(store, &fakeNotifier{}, &fakeScheduler{})

		granted, err := bonus.OnPositiveReview(ctx, "ORD-1", 5)
		require.NoError(t, err)
		assert.False(t, granted)
	})

	t.Run("unknown order is a no-op", func(t *testing.T) {
		bonus := newBonusService(newFakeAccountStore(), &fakeNotifier{}, &fakeScheduler{})
		granted, err := bonus.OnPositiveReview(ctx, "ORD-404", 5)
		require.NoError(t, err)
		assert.False(t, granted)
	})
}
