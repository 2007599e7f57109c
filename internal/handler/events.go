package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/steamrent/rental-server-go/internal/capability"
	apperrors "github.com/steamrent/rental-server-go/internal/errors"
	"github.com/steamrent/rental-server-go/internal/httputil"
	"github.com/steamrent/rental-server-go/internal/model"
	"github.com/steamrent/rental-server-go/internal/repository"
	"github.com/steamrent/rental-server-go/internal/service"
)

var (
	// Marketplace payment messages reference the order as "#ABC123".
	orderIDPattern = regexp.MustCompile(`#([A-Za-z0-9-]+)`)
	// Multi-unit purchases show up as "3 шт." in the order summary.
	quantityPattern = regexp.MustCompile(`(\d+)\s*шт`)
)

// EventsHandler receives the text-event feed from the marketplace poller:
// buyer chat messages, paid orders and reviews.
type EventsHandler struct {
	accounts   repository.AccountRepository
	alloc      *service.AllocationService
	bonus      *service.BonusService
	friendMode *service.FriendModeService
	gameNames  *service.GameNameService
	limiter    *service.CommandRateLimiter
	notifier   capability.Notifier
}

func NewEventsHandler(
	accounts repository.AccountRepository,
	alloc *service.AllocationService,
	bonus *service.BonusService,
	friendMode *service.FriendModeService,
	gameNames *service.GameNameService,
	limiter *service.CommandRateLimiter,
	notifier capability.Notifier,
) *EventsHandler {
	return &EventsHandler{
		accounts:   accounts,
		alloc:      alloc,
		bonus:      bonus,
		friendMode: friendMode,
		gameNames:  gameNames,
		limiter:    limiter,
		notifier:   notifier,
	}
}

func (h *EventsHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/message", h.Message)
	r.Post("/order", h.Order)
	r.Post("/review", h.Review)
	return r
}

type messageEvent struct {
	BuyerID string `json:"buyerId"`
	Text    string `json:"text"`
}

// Message handles a buyer chat message. Only the two buyer commands are
// recognized; everything else is reported back as unhandled so the poller can
// fall through to its canned replies.
func (h *EventsHandler) Message(w http.ResponseWriter, r *http.Request) {
	var event messageEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if event.BuyerID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("buyerId"))
		return
	}

	text := strings.TrimSpace(event.Text)
	switch {
	case strings.HasPrefix(strings.ToLower(text), "!friend"):
		if !h.limiter.Allow(r.Context(), event.BuyerID) {
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}
		h.handleFriendCommand(w, r, event.BuyerID)

	case strings.HasPrefix(strings.ToLower(text), "!check"):
		if !h.limiter.Allow(r.Context(), event.BuyerID) {
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}
		h.handleCheckCommand(w, r, event.BuyerID, strings.TrimSpace(text[len("!check"):]))

	default:
		httputil.WriteJSON(w, http.StatusOK, map[string]any{"handled": false})
	}
}

func (h *EventsHandler) handleFriendCommand(w http.ResponseWriter, r *http.Request, buyerID string) {
	if err := h.friendMode.Activate(r.Context(), buyerID); err != nil {
		httputil.WriteError(w, err)
		return
	}

	message := "Режим «для друзей» включён на 10 минут: следующая покупка нескольких штук выдаст отдельные аккаунты."
	if err := h.notifier.Notify(r.Context(), buyerID, message); err != nil {
		log.Warn().Err(err).Str("buyer_id", buyerID).Msg("friend mode confirmation failed")
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"handled": true, "command": "friend"})
}

func (h *EventsHandler) handleCheckCommand(w http.ResponseWriter, r *http.Request, buyerID, rawGame string) {
	if rawGame == "" {
		httputil.WriteError(w, apperrors.MissingRequired("game"))
		return
	}

	game := h.gameNames.Normalize(r.Context(), rawGame)

	name, free, err := h.accounts.FreeCountLike(r.Context(), game)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	var message string
	switch {
	case free > 0:
		message = fmt.Sprintf("Свободно аккаунтов «%s»: %d. Можно арендовать прямо сейчас.", name, free)
	default:
		next, err := h.accounts.NextReleaseLike(r.Context(), game)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		if next == nil || next.RentedUntil == nil {
			message = fmt.Sprintf("Аккаунтов «%s» не найдено.", rawGame)
		} else {
			message = fmt.Sprintf("Свободных аккаунтов «%s» нет. Ближайший освободится в %s.",
				next.GameName, next.RentedUntil.Format("15:04:05 02.01.2006"))
		}
	}

	if err := h.notifier.Notify(r.Context(), buyerID, message); err != nil {
		log.Warn().Err(err).Str("buyer_id", buyerID).Msg("availability reply failed")
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"handled": true,
		"command": "check",
		"free":    free,
	})
}

type orderEvent struct {
	BuyerID     string `json:"buyerId"`
	OrderID     string `json:"orderId"`
	Game        string `json:"game"`
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type issuedAccount struct {
	AccountID string    `json:"accountId"`
	Login     string    `json:"login"`
	Password  string    `json:"password"`
	GameName  string    `json:"gameName"`
	Until     time.Time `json:"until"`
	OrderID   string    `json:"orderId"`
}

type orderResponse struct {
	Issued    []issuedAccount `json:"issued"`
	Extended  *issuedAccount  `json:"extended,omitempty"`
	Shortfall int             `json:"shortfall,omitempty"`
}

// Order handles a paid marketplace order: duration comes from the lot
// description, the order id and quantity from the payment message, and the
// allocation policy decides between fan-out and extension. Credentials are
// returned to the poller, which formats the buyer-facing reply.
func (h *EventsHandler) Order(w http.ResponseWriter, r *http.Request) {
	var event orderEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if event.BuyerID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("buyerId"))
		return
	}
	if event.Game == "" {
		httputil.WriteError(w, apperrors.MissingRequired("game"))
		return
	}

	orderID := event.OrderID
	if orderID == "" {
		orderID = extractOrderID(event.Description)
	}
	if orderID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("orderId"))
		return
	}

	perUnit, err := service.ParseRentDuration(event.Description)
	if err != nil {
		// Never rent with an unknown duration.
		httputil.WriteError(w, err)
		return
	}

	quantity := event.Quantity
	if quantity < 1 {
		quantity = extractQuantity(event.Description)
	}

	game := h.gameNames.Normalize(r.Context(), event.Game)

	result, err := h.alloc.Allocate(r.Context(), game, event.BuyerID, quantity, perUnit, model.ExternalOrder(orderID))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	response := orderResponse{Shortfall: result.Shortfall}
	for _, issued := range result.Issued {
		response.Issued = append(response.Issued, toIssuedAccount(issued))
	}
	if result.Extended != nil {
		extended := toIssuedAccount(*result.Extended)
		response.Extended = &extended
	}

	httputil.WriteJSON(w, http.StatusOK, response)
}

type reviewEvent struct {
	OrderID string `json:"orderId"`
	Rating  int    `json:"rating"`
}

// Review handles a marketplace review notification.
func (h *EventsHandler) Review(w http.ResponseWriter, r *http.Request) {
	var event reviewEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		httputil.WriteError(w, apperrors.InvalidInput("body", "malformed JSON"))
		return
	}
	if event.OrderID == "" {
		httputil.WriteError(w, apperrors.MissingRequired("orderId"))
		return
	}

	granted, err := h.bonus.OnPositiveReview(r.Context(), event.OrderID, event.Rating)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{"granted": granted})
}

func toIssuedAccount(issued service.IssuedLease) issuedAccount {
	return issuedAccount{
		AccountID: issued.Account.ID,
		Login:     issued.Account.Login,
		Password:  issued.Account.Password,
		GameName:  issued.Account.GameName,
		Until:     issued.Until,
		OrderID:   issued.Order.ID,
	}
}

func extractOrderID(text string) string {
	if m := orderIDPattern.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return ""
}

func extractQuantity(text string) int {
	if m := quantityPattern.FindStringSubmatch(text); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil && n > 0 {
			return n
		}
	}
	return 1
}
