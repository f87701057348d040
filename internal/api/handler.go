package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strconv"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"tapcoin-bot/internal/identity"
	"tapcoin-bot/internal/leaderboard"
	"tapcoin-bot/internal/ledger"
	"tapcoin-bot/internal/models"
	"tapcoin-bot/internal/payment"
	"tapcoin-bot/internal/powerup"
)

// Guest identity used when a request carries no parseable identity.
const (
	GuestIdentity int64 = 999999999
	GuestUsername       = "guest"
)

const (
	reasonPaymentsDisabled   = "payments_disabled"
	reasonUnknownPack        = "unknown_pack"
	reasonPowerupUnavailable = "powerup_unavailable"
)

const withdrawNote = "Withdrawals are not live yet. Keep tapping, your balance is safe."

type Ledger interface {
	GetOrCreateUser(ctx context.Context, id int64, referralCode string, profile ledger.Profile) (*models.User, bool, error)
	RefreshDailyState(ctx context.Context, user *models.User) (*models.User, error)
	ApplyTap(ctx context.Context, user *models.User) (ledger.Outcome, error)
	ApplyTaskReward(ctx context.Context, user *models.User, code string) (ledger.Outcome, error)
	RefillEnergy(ctx context.Context, user *models.User) (*models.User, error)
	Settings() ledger.Settings
}

type Leaderboard interface {
	Compute(ctx context.Context, user *models.User) (*leaderboard.Board, error)
}

type Powerups interface {
	Get(ctx context.Context, id string) (*models.Powerup, error)
	ActiveForUser(ctx context.Context, identity string) ([]models.Powerup, error)
	ConsumeUnitByID(ctx context.Context, id string) (*models.Powerup, error)
}

type Checkout interface {
	Checkout(ctx context.Context, identity int64, pack powerup.Pack) (*payment.PaymentResponse, error)
}

// Schema blocks until the database schema exists.
type Schema interface {
	Ensure(ctx context.Context) error
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Options struct {
	AllowGuest      bool
	RequireVerified bool
	BotUsername     string
	AllowedOrigins  []string
	RateLimit       int
}

type Deps struct {
	Resolver    *identity.Resolver
	Ledger      Ledger
	Leaderboard Leaderboard
	Powerups    Powerups
	Checkout    Checkout
	Webhook     http.HandlerFunc
	Schema      Schema
	DB          Pinger
}

type Handler struct {
	resolver    *identity.Resolver
	ledger      Ledger
	leaderboard Leaderboard
	powerups    Powerups
	checkout    Checkout
	webhook     http.HandlerFunc
	schema      Schema
	db          Pinger
	validate    *validator.Validate
	opts        Options
}

func NewHandler(deps Deps, opts Options) *Handler {
	if opts.RateLimit <= 0 {
		opts.RateLimit = 600
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Handler{
		resolver:    deps.Resolver,
		ledger:      deps.Ledger,
		leaderboard: deps.Leaderboard,
		powerups:    deps.Powerups,
		checkout:    deps.Checkout,
		webhook:     deps.Webhook,
		schema:      deps.Schema,
		db:          deps.DB,
		validate:    validator.New(),
		opts:        opts,
	}
}

type taskRequest struct {
	identity.Payload
	Code string `json:"code" validate:"required,max=64"`
}

type checkoutRequest struct {
	identity.Payload
	SKU string `json:"sku" validate:"required,max=64"`
}

type consumeRequest struct {
	identity.Payload
	PowerupID string `json:"powerup_id" validate:"required,max=64"`
}

type snapshot struct {
	OK             bool             `json:"ok"`
	Identity       int64            `json:"identity"`
	Username       string           `json:"username"`
	Balance        int64            `json:"balance"`
	Energy         int              `json:"energy"`
	EnergyCap      int              `json:"energy_cap"`
	TodayEarned    int64            `json:"today_earned"`
	TapsToday      int              `json:"taps_today"`
	InviteLink     string           `json:"invite_link"`
	ReferralCount  int              `json:"referral_count"`
	ReferralPoints int64            `json:"referral_points"`
	Powerups       []models.Powerup `json:"powerups,omitempty"`
	Reward         int64            `json:"reward,omitempty"`
	Reason         string           `json:"reason,omitempty"`
}

type leaderboardResponse struct {
	OK      bool                `json:"ok"`
	Me      leaderboard.Me      `json:"me"`
	Global  []leaderboard.Entry `json:"global"`
	Friends []leaderboard.Entry `json:"friends"`
}

type withdrawResponse struct {
	OK      bool   `json:"ok"`
	Balance int64  `json:"balance"`
	Note    string `json:"note"`
}

type packView struct {
	SKU           string `json:"sku"`
	Code          string `json:"code"`
	Title         string `json:"title"`
	Quantity      int    `json:"quantity"`
	DurationHours int    `json:"duration_hours,omitempty"`
	PriceRUB      string `json:"price_rub"`
	PriceStars    int    `json:"price_stars"`
}

type catalogResponse struct {
	OK    bool       `json:"ok"`
	Packs []packView `json:"packs"`
}

type checkoutResponse struct {
	OK              bool   `json:"ok"`
	PaymentID       string `json:"payment_id,omitempty"`
	ConfirmationURL string `json:"confirmation_url,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// InviteLink is the bot deep link that credits identity as referrer.
func InviteLink(botUsername string, id int64) string {
	if botUsername == "" {
		return ""
	}
	return "https://t.me/" + botUsername + "?start=" + identity.ReferralCode(id)
}

func (h *Handler) snapshot(u *models.User) snapshot {
	return snapshot{
		OK:             true,
		Identity:       u.Identity,
		Username:       u.Username,
		Balance:        u.Balance,
		Energy:         u.Energy,
		EnergyCap:      h.ledger.Settings().EnergyCap,
		TodayEarned:    u.TodayEarned,
		TapsToday:      u.TapsToday,
		InviteLink:     InviteLink(h.opts.BotUsername, u.Identity),
		ReferralCount:  u.ReferralCount,
		ReferralPoints: u.ReferralPoints,
	}
}

// caller applies the identity policy. It writes the error response itself and
// returns false when the request must stop.
func (h *Handler) caller(w http.ResponseWriter, p identity.Payload) (identity.Result, bool) {
	res := h.resolver.Resolve(p)
	switch res.Status {
	case identity.Unparseable:
		if !h.opts.AllowGuest {
			respondError(w, http.StatusUnauthorized, errIdentityRequired)
			return res, false
		}
		res = identity.Result{Status: identity.Unverified, Identity: GuestIdentity, Username: GuestUsername}
	case identity.Unverified:
		if h.opts.RequireVerified {
			respondError(w, http.StatusUnauthorized, errIdentityUnverified)
			return res, false
		}
	}
	return res, true
}

// player resolves the caller, loads or creates their row and applies the daily reset.
func (h *Handler) player(w http.ResponseWriter, r *http.Request, p identity.Payload) (*models.User, bool) {
	res, ok := h.caller(w, p)
	if !ok {
		return nil, false
	}

	ctx := r.Context()
	user, _, err := h.ledger.GetOrCreateUser(ctx, res.Identity, res.ReferralCode, ledger.Profile{
		Username:     res.Username,
		LanguageCode: res.LanguageCode,
	})
	if err != nil {
		h.internalError(w, r, "Failed to load user", err)
		return nil, false
	}

	user, err = h.ledger.RefreshDailyState(ctx, user)
	if err != nil {
		h.internalError(w, r, "Failed to refresh daily state", err)
		return nil, false
	}
	return user, true
}

func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	zap.L().Error(msg, zap.String("path", r.URL.Path), zap.Error(err))
	respondError(w, http.StatusInternalServerError, errInternal)
}

func (h *Handler) bind(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := decode(r, v); err != nil {
		respondError(w, http.StatusBadRequest, errBadRequest)
		return false
	}
	if err := h.validate.Struct(v); err != nil {
		var invalid validator.ValidationErrors
		if errors.As(err, &invalid) {
			respondError(w, http.StatusBadRequest, errBadRequest)
			return false
		}
		h.internalError(w, r, "Failed to validate request", err)
		return false
	}
	return true
}

func (h *Handler) activePowerups(ctx context.Context, id int64) []models.Powerup {
	if h.powerups == nil {
		return nil
	}
	list, err := h.powerups.ActiveForUser(ctx, strconv.FormatInt(id, 10))
	if err != nil {
		zap.L().Warn("Failed to list powerups", zap.Int64("identity", id), zap.Error(err))
		return nil
	}
	return list
}

func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	var req identity.Payload
	if !h.bind(w, r, &req) {
		return
	}
	user, ok := h.player(w, r, req)
	if !ok {
		return
	}

	resp := h.snapshot(user)
	resp.Powerups = h.activePowerups(r.Context(), user.Identity)
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) Tap(w http.ResponseWriter, r *http.Request) {
	var req identity.Payload
	if !h.bind(w, r, &req) {
		return
	}
	user, ok := h.player(w, r, req)
	if !ok {
		return
	}

	out, err := h.ledger.ApplyTap(r.Context(), user)
	if err != nil {
		h.internalError(w, r, "Failed to apply tap", err)
		return
	}

	resp := h.snapshot(out.User)
	resp.Reward = out.Reward
	resp.Reason = out.Reason
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) Task(w http.ResponseWriter, r *http.Request) {
	var req taskRequest
	if !h.bind(w, r, &req) {
		return
	}
	user, ok := h.player(w, r, req.Payload)
	if !ok {
		return
	}

	out, err := h.ledger.ApplyTaskReward(r.Context(), user, req.Code)
	if err != nil {
		h.internalError(w, r, "Failed to apply task reward", err)
		return
	}

	resp := h.snapshot(out.User)
	resp.Reward = out.Reward
	resp.Reason = out.Reason
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) Friends(w http.ResponseWriter, r *http.Request) {
	var req identity.Payload
	if !h.bind(w, r, &req) {
		return
	}
	user, ok := h.player(w, r, req)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, h.snapshot(user))
}

func (h *Handler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	var req identity.Payload
	if !h.bind(w, r, &req) {
		return
	}
	user, ok := h.player(w, r, req)
	if !ok {
		return
	}

	board, err := h.leaderboard.Compute(r.Context(), user)
	if err != nil {
		h.internalError(w, r, "Failed to compute leaderboard", err)
		return
	}

	respondJSON(w, http.StatusOK, leaderboardResponse{
		OK:      true,
		Me:      board.Me,
		Global:  board.Global,
		Friends: board.Friends,
	})
}

func (h *Handler) WithdrawInfo(w http.ResponseWriter, r *http.Request) {
	var req identity.Payload
	if !h.bind(w, r, &req) {
		return
	}
	user, ok := h.player(w, r, req)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, withdrawResponse{OK: true, Balance: user.Balance, Note: withdrawNote})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			zap.L().Warn("Health check failed", zap.Error(err))
			respondJSON(w, http.StatusServiceUnavailable, map[string]bool{"ok": false})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (h *Handler) PowerupCatalog(w http.ResponseWriter, _ *http.Request) {
	packs := make([]packView, 0, len(powerup.Catalog))
	for _, p := range powerup.Catalog {
		packs = append(packs, packView{
			SKU:           p.SKU,
			Code:          p.Code,
			Title:         p.Title,
			Quantity:      p.Quantity,
			DurationHours: int(p.Duration.Hours()),
			PriceRUB:      p.PriceRUB,
			PriceStars:    p.PriceStars,
		})
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].SKU < packs[j].SKU })
	respondJSON(w, http.StatusOK, catalogResponse{OK: true, Packs: packs})
}

func (h *Handler) PowerupCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if !h.bind(w, r, &req) {
		return
	}
	user, ok := h.player(w, r, req.Payload)
	if !ok {
		return
	}

	if h.checkout == nil {
		respondJSON(w, http.StatusOK, checkoutResponse{OK: true, Reason: reasonPaymentsDisabled})
		return
	}
	pack, found := powerup.LookupPack(req.SKU)
	if !found {
		respondJSON(w, http.StatusOK, checkoutResponse{OK: true, Reason: reasonUnknownPack})
		return
	}

	resp, err := h.checkout.Checkout(r.Context(), user.Identity, pack)
	if err != nil {
		h.internalError(w, r, "Failed to start checkout", err)
		return
	}

	zap.L().Info("Checkout started",
		zap.Int64("identity", user.Identity),
		zap.String("sku", pack.SKU),
		zap.String("payment_id", resp.ID),
	)
	respondJSON(w, http.StatusOK, checkoutResponse{
		OK:              true,
		PaymentID:       resp.ID,
		ConfirmationURL: resp.Confirmation.ConfirmationURL,
	})
}

func (h *Handler) PowerupConsume(w http.ResponseWriter, r *http.Request) {
	var req consumeRequest
	if !h.bind(w, r, &req) {
		return
	}
	user, ok := h.player(w, r, req.Payload)
	if !ok {
		return
	}

	unavailable := func() {
		resp := h.snapshot(user)
		resp.Powerups = h.activePowerups(r.Context(), user.Identity)
		resp.Reason = reasonPowerupUnavailable
		respondJSON(w, http.StatusOK, resp)
	}

	if h.powerups == nil {
		unavailable()
		return
	}

	ctx := r.Context()
	owned, err := h.powerups.Get(ctx, req.PowerupID)
	if err != nil {
		h.internalError(w, r, "Failed to load powerup", err)
		return
	}
	if owned == nil || owned.UserIdentity != strconv.FormatInt(user.Identity, 10) {
		unavailable()
		return
	}

	consumed, err := h.powerups.ConsumeUnitByID(ctx, owned.ID)
	if err != nil {
		h.internalError(w, r, "Failed to consume powerup", err)
		return
	}
	if consumed == nil {
		unavailable()
		return
	}

	if consumed.Code == powerup.CodeEnergyRefill {
		user, err = h.ledger.RefillEnergy(ctx, user)
		if err != nil {
			h.internalError(w, r, "Failed to refill energy", err)
			return
		}
	}

	zap.L().Info("Powerup consumed",
		zap.Int64("identity", user.Identity),
		zap.String("powerup_id", consumed.ID),
		zap.String("code", consumed.Code),
		zap.Int("remaining", consumed.Quantity),
	)

	resp := h.snapshot(user)
	resp.Powerups = h.activePowerups(ctx, user.Identity)
	respondJSON(w, http.StatusOK, resp)
}
