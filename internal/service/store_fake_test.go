package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/steamrent/rental-server-go/internal/errors"
	"github.com/steamrent/rental-server-go/internal/model"
	"github.com/steamrent/rental-server-go/internal/repository"
)

// fakeAccountStore is an in-memory stand-in for the Postgres account
// repository. Mutations run under one mutex, mirroring the per-row
// serialization the real store gets from row locks, so the concurrency
// properties (additive extends, release idempotence) are exercised for real.
type fakeAccountStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account
	seq      int
}

var _ repository.AccountRepository = (*fakeAccountStore)(nil)

func newFakeAccountStore() *fakeAccountStore {
	return &fakeAccountStore{accounts: make(map[string]*model.Account)}
}

func (f *fakeAccountStore) addFree(id, game string) *model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	account := &model.Account{
		ID:       id,
		Login:    "login-" + id,
		Password: "secret-" + id,
		GameName: game,
		Status:   model.AccountStatusFree,
	}
	f.accounts[id] = account
	return account
}

func (f *fakeAccountStore) addRented(id, game, renterID, orderID string, until time.Time) *model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	account := &model.Account{
		ID:          id,
		Login:       "login-" + id,
		Password:    "secret-" + id,
		GameName:    game,
		Status:      model.AccountStatusRented,
		RenterID:    &renterID,
		RentedUntil: &until,
		OrderID:     &orderID,
	}
	f.accounts[id] = account
	return account
}

func (f *fakeAccountStore) snapshot(id string) model.Account {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.accounts[id]
}

func (f *fakeAccountStore) GetByID(_ context.Context, id string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (f *fakeAccountStore) FindFree(_ context.Context, gameName string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.sortedIDs() {
		account := f.accounts[id]
		if account.GameName == gameName && account.Status == model.AccountStatusFree {
			copied := *account
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeAccountStore) CountFree(_ context.Context, gameName string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, account := range f.accounts {
		if account.GameName == gameName && account.Status == model.AccountStatusFree {
			count++
		}
	}
	return count, nil
}

func (f *fakeAccountStore) FindRentedByRenter(_ context.Context, renterID string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.sortedIDs() {
		account := f.accounts[id]
		if account.Status == model.AccountStatusRented && account.RenterID != nil && *account.RenterID == renterID {
			copied := *account
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeAccountStore) FindRentedByOrder(_ context.Context, orderID string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.sortedIDs() {
		account := f.accounts[id]
		if account.Status == model.AccountStatusRented && account.OrderID != nil && *account.OrderID == orderID {
			copied := *account
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeAccountStore) ListRented(_ context.Context) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Account
	for _, id := range f.sortedIDs() {
		if f.accounts[id].Status == model.AccountStatusRented {
			out = append(out, *f.accounts[id])
		}
	}
	return out, nil
}

func (f *fakeAccountStore) ListAll(_ context.Context) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Account
	for _, id := range f.sortedIDs() {
		out = append(out, *f.accounts[id])
	}
	return out, nil
}

func (f *fakeAccountStore) DistinctFreeGames(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := make(map[string]bool)
	var games []string
	for _, account := range f.accounts {
		if account.Status == model.AccountStatusFree && !seen[account.GameName] {
			seen[account.GameName] = true
			games = append(games, account.GameName)
		}
	}
	sort.Strings(games)
	return games, nil
}

func (f *fakeAccountStore) FreeCountLike(_ context.Context, gameQuery string) (string, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := ""
	count := 0
	for _, account := range f.accounts {
		if account.Status != model.AccountStatusFree {
			continue
		}
		if strings.Contains(strings.ToLower(account.GameName), strings.ToLower(gameQuery)) {
			if name == "" {
				name = account.GameName
			}
			if account.GameName == name {
				count++
			}
		}
	}
	return name, count, nil
}

func (f *fakeAccountStore) NextReleaseLike(_ context.Context, gameQuery string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *model.Account
	for _, account := range f.accounts {
		if account.Status != model.AccountStatusRented || account.RentedUntil == nil {
			continue
		}
		if !strings.Contains(strings.ToLower(account.GameName), strings.ToLower(gameQuery)) {
			continue
		}
		if best == nil || account.RentedUntil.Before(*best.RentedUntil) {
			best = account
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

func (f *fakeAccountStore) Create(_ context.Context, params model.CreateAccountParams) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	account := &model.Account{
		ID:       fmt.Sprintf("fake-%d", f.seq),
		Login:    params.Login,
		Password: params.Password,
		GameName: params.GameName,
		Status:   model.AccountStatusFree,
	}
	f.accounts[account.ID] = account
	copied := *account
	return &copied, nil
}

func (f *fakeAccountStore) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return apperrors.NotFound("account")
	}
	if account.Status == model.AccountStatusRented {
		return apperrors.New(apperrors.ErrCodeConflict, "Account is rented and cannot be deleted")
	}
	delete(f.accounts, id)
	return nil
}

func (f *fakeAccountStore) MarkRented(_ context.Context, id string, params model.RentParams) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return time.Time{}, apperrors.NotFound("account")
	}
	if account.Status != model.AccountStatusFree {
		return time.Time{}, apperrors.AlreadyRented(id)
	}
	renter := params.RenterID
	until := params.Until
	account.Status = model.AccountStatusRented
	account.RenterID = &renter
	account.RentedUntil = &until
	account.OrderID = orderIDPtr(params.Order)
	account.OrderSynthetic = params.Order.Kind == model.OrderRefSynthetic
	account.Warned = false
	account.BonusGranted = false
	return until, nil
}

func (f *fakeAccountStore) ExtendRented(_ context.Context, id string, params model.ExtendParams) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return time.Time{}, apperrors.NotFound("account")
	}
	if account.Status != model.AccountStatusRented {
		return time.Time{}, apperrors.NotRented(id)
	}

	now := time.Now()
	var until time.Time
	switch {
	case account.RentedUntil != nil && account.RentedUntil.After(now):
		until = account.RentedUntil.Add(params.Bonus)
	case params.Until != nil:
		until = *params.Until
	case params.Bonus > 0:
		until = now.Add(params.Bonus)
	default:
		until = now.Add(params.Fallback)
	}

	account.RentedUntil = &until
	if ref := orderIDPtr(params.Order); ref != nil {
		account.OrderID = ref
		account.OrderSynthetic = params.Order.Kind == model.OrderRefSynthetic
	}
	account.Warned = false
	return until, nil
}

func (f *fakeAccountStore) MarkFree(_ context.Context, id string) (*model.ReleaseInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return nil, apperrors.NotFound("account")
	}
	if account.Status != model.AccountStatusRented {
		return nil, nil
	}

	var info *model.ReleaseInfo
	if account.RenterID != nil {
		info = &model.ReleaseInfo{RenterID: *account.RenterID, Order: account.OrderRef()}
	}

	account.Status = model.AccountStatusFree
	account.RenterID = nil
	account.RentedUntil = nil
	account.OrderID = nil
	account.OrderSynthetic = false
	account.Warned = false
	account.BonusGranted = false
	return info, nil
}

func (f *fakeAccountStore) SetWarned(_ context.Context, id, renterID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return false, nil
	}
	if account.Status != model.AccountStatusRented || account.Warned {
		return false, nil
	}
	if account.RenterID == nil || *account.RenterID != renterID {
		return false, nil
	}
	account.Warned = true
	return true, nil
}

func (f *fakeAccountStore) ClaimBonus(_ context.Context, orderID string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	for _, id := range f.sortedIDs() {
		account := f.accounts[id]
		if account.Status != model.AccountStatusRented || account.BonusGranted {
			continue
		}
		if account.OrderID == nil || *account.OrderID != orderID {
			continue
		}
		if account.RentedUntil == nil || !account.RentedUntil.After(now) {
			continue
		}
		account.BonusGranted = true
		copied := *account
		return &copied, nil
	}
	return nil, nil
}

func (f *fakeAccountStore) UpdatePassword(_ context.Context, id, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return apperrors.NotFound("account")
	}
	account.Password = password
	return nil
}

func (f *fakeAccountStore) SetGuardLookup(_ context.Context, id string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	account, ok := f.accounts[id]
	if !ok {
		return apperrors.NotFound("account")
	}
	account.GuardLookupEnabled = enabled
	return nil
}

func (f *fakeAccountStore) sortedIDs() []string {
	ids := make([]string, 0, len(f.accounts))
	for id := range f.accounts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func orderIDPtr(ref model.OrderRef) *string {
	if ref.ID == "" {
		return nil
	}
	id := ref.ID
	return &id
}

// fakeNotifier records outbound messages.
type fakeNotifier struct {
	mu       sync.Mutex
	messages []fakeMessage
	fail     bool
}

type fakeMessage struct {
	Recipient string
	Message   string
}

func (n *fakeNotifier) Notify(_ context.Context, recipient, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return fmt.Errorf("notifier unavailable")
	}
	n.messages = append(n.messages, fakeMessage{Recipient: recipient, Message: message})
	return nil
}

func (n *fakeNotifier) sent() []fakeMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]fakeMessage, len(n.messages))
	copy(out, n.messages)
	return out
}

// fakeScheduler records watcher scheduling requests.
type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []scheduledLease
}

type scheduledLease struct {
	AccountID string
	RenterID  string
	Remaining time.Duration
}

func (s *fakeScheduler) Schedule(accountID, renterID string, remaining time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = append(s.scheduled, scheduledLease{AccountID: accountID, RenterID: renterID, Remaining: remaining})
}

func (s *fakeScheduler) calls() []scheduledLease {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]scheduledLease, len(s.scheduled))
	copy(out, s.scheduled)
	return out
}
