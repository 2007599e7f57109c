package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/steamrent/rental-server-go/internal/errors"
	"github.com/steamrent/rental-server-go/internal/httputil"
	"github.com/steamrent/rental-server-go/internal/model"
	"github.com/steamrent/rental-server-go/internal/repository"
	"github.com/steamrent/rental-server-go/internal/service"
)

// AdminHandler exposes the operator panel: account inventory and CRUD, manual
// rentals, game-name mappings and friend-mode activation.
type AdminHandler struct {
	accounts   repository.AccountRepository
	lease      *service.LeaseService
	scheduler  service.ExpiryScheduler
	gameNames  *service.GameNameService
	friendMode *service.FriendModeService
}

func NewAdminHandler(
	accounts repository.AccountRepository,
	lease *service.LeaseService,
	scheduler service.ExpiryScheduler,
	gameNames *service.GameNameService,
	friendMode *service.FriendModeService,
) *AdminHandler {
	return &AdminHandler{
		accounts:   accounts,
		lease:      lease,
		scheduler:  scheduler,
		gameNames:  gameNames,
		friendMode: friendMode,
	}
}

func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/accounts", h.ListAccounts)
	r.Post("/accounts", h.CreateAccount)
	r.Delete("/accounts/{id}", h.DeleteAccount)
	r.Post("/accounts/{id}/rent", h.RentAccount)
	r.Post("/accounts/{id}/extend", h.ExtendAccount)
	r.Post("/accounts/{id}/expiry", h.SetExpiry)
	r.Post("/accounts/{id}/release", h.ReleaseAccount)
	r.Post("/accounts/{id}/guard", h.SetGuardLookup)
	r.Get("/game-names", h.ListGameNames)
	r.Post("/game-names", h.RegisterGameName)
	r.Post("/friend-mode", h.ActivateFriendMode)
	return r
}

// accountView augments the stored row with the operator-facing stuck marker:
// a lease whose expiry passed but whose rotation never succeeded stays RENTED
// and needs manual attention.
type accountView struct {
	model.Account
	RemainingSeconds int64 `json:"remainingSeconds"`
	Stuck            bool  `json:"stuck"`
}

func (h *AdminHandler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.ListAll(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	now := time.Now()
	views := make([]accountView, 0, len(accounts))
	for _, account := range accounts {
		remaining := account.Remaining(now)
		views = append(views, accountView{
			Account:          account,
			RemainingSeconds: int64(remaining.Seconds()),
			Stuck:            account.IsRented() && remaining <= 0,
		})
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"accounts": views})
}

type createAccountRequest struct {
	Login              string  `json:"login"`
	Password           string  `json:"password"`
	GameName           string  `json:"gameName"`
	GuardLookupEnabled bool    `json:"guardLookupEnabled"`
	MailboxLogin       *string `json:"mailboxLogin"`
	MailboxPassword    *string `json:"mailboxPassword"`
	IMAPHost           *string `json:"imapHost"`
}

func (h *AdminHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.Login == "" || req.Password == "" || req.GameName == "" {
		httputil.WriteError(w, apperrors.MissingRequired("login, password, gameName"))
		return
	}

	account, err := h.accounts.Create(r.Context(), model.CreateAccountParams{
		Login:              req.Login,
		Password:           req.Password,
		GameName:           req.GameName,
		GuardLookupEnabled: req.GuardLookupEnabled,
		MailboxLogin:       req.MailboxLogin,
		MailboxPassword:    req.MailboxPassword,
		IMAPHost:           req.IMAPHost,
	})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, account)
}

func (h *AdminHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.accounts.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type rentRequest struct {
	RenterID        string `json:"renterId"`
	DurationSeconds int64  `json:"durationSeconds"`
}

// RentAccount issues an account manually. The lease gets a synthetic order
// reference, so no marketplace notification fires when it ends.
func (h *AdminHandler) RentAccount(w http.ResponseWriter, r *http.Request) {
	var req rentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.RenterID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("renterId"))
		return
	}

	accountID := chi.URLParam(r, "id")
	order := model.NewSyntheticOrder()

	until, err := h.lease.Rent(r.Context(), accountID, req.RenterID, time.Duration(req.DurationSeconds)*time.Second, order)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	h.scheduler.Schedule(accountID, req.RenterID, time.Until(until))
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"until": until, "orderId": order.ID})
}

type extendRequest struct {
	BonusSeconds int64 `json:"bonusSeconds"`
}

func (h *AdminHandler) ExtendAccount(w http.ResponseWriter, r *http.Request) {
	var req extendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	accountID := chi.URLParam(r, "id")
	until, err := h.lease.Extend(r.Context(), accountID, time.Duration(req.BonusSeconds)*time.Second, model.OrderRef{})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err == nil && account != nil && account.RenterID != nil {
		h.scheduler.Schedule(accountID, *account.RenterID, time.Until(until))
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"until": until})
}

type expiryRequest struct {
	Until time.Time `json:"until"`
}

// SetExpiry restarts a lapsed-but-unswept lease at an absolute timestamp.
// A still-live lease keeps its expiry; running leases only ever grow.
func (h *AdminHandler) SetExpiry(w http.ResponseWriter, r *http.Request) {
	var req expiryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.Until.IsZero() {
		httputil.WriteError(w, apperrors.MissingRequired("until"))
		return
	}

	accountID := chi.URLParam(r, "id")
	until, err := h.lease.ExtendUntil(r.Context(), accountID, req.Until, model.OrderRef{})
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	account, err := h.accounts.GetByID(r.Context(), accountID)
	if err == nil && account != nil && account.RenterID != nil {
		h.scheduler.Schedule(accountID, *account.RenterID, time.Until(until))
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"until": until})
}

// ReleaseAccount is the operator "end rental" action. Safe to call twice.
func (h *AdminHandler) ReleaseAccount(w http.ResponseWriter, r *http.Request) {
	info, err := h.lease.Release(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"released": info != nil})
}

type guardRequest struct {
	Enabled bool `json:"enabled"`
}

func (h *AdminHandler) SetGuardLookup(w http.ResponseWriter, r *http.Request) {
	var req guardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}

	if err := h.accounts.SetGuardLookup(r.Context(), chi.URLParam(r, "id"), req.Enabled); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"enabled": req.Enabled})
}

func (h *AdminHandler) ListGameNames(w http.ResponseWriter, r *http.Request) {
	mappings, err := h.gameNames.Mappings(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"mappings": mappings})
}

type gameNameRequest struct {
	Raw       string `json:"raw"`
	Canonical string `json:"canonical"`
}

func (h *AdminHandler) RegisterGameName(w http.ResponseWriter, r *http.Request) {
	var req gameNameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.Raw == "" || req.Canonical == "" {
		httputil.WriteError(w, apperrors.MissingRequired("raw, canonical"))
		return
	}

	if err := h.gameNames.Register(r.Context(), req.Raw, req.Canonical); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"registered": true})
}

type friendModeRequest struct {
	BuyerID string `json:"buyerId"`
}

func (h *AdminHandler) ActivateFriendMode(w http.ResponseWriter, r *http.Request) {
	var req friendModeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if req.BuyerID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("buyerId"))
		return
	}

	if err := h.friendMode.Activate(r.Context(), req.BuyerID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"activated": true})
}
