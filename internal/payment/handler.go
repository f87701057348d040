package payment

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tapcoin-bot/internal/models"
	"tapcoin-bot/internal/powerup"
	"tapcoin-bot/internal/utils"
)

const (
	metaTelegramID = "telegram_id"
	metaSKU        = "sku"
	metaType       = "type"
	typePowerup    = "powerup"
)

type Granter interface {
	Add(ctx context.Context, g powerup.Grant) (*models.Powerup, error)
}

// Notifier tells a player about a completed purchase.
type Notifier interface {
	Notify(ctx context.Context, identity int64, text string) error
}

type Handler struct {
	Client     *Client
	DB         *gorm.DB
	Powerups   Granter
	Notifier   Notifier
	AllowedIPs *utils.IPAllowList
	ReturnURL  string
	Now        func() time.Time
}

func NewHandler(client *Client, db *gorm.DB, powerups Granter, notifier Notifier, allowedIPs []string, returnURL string) *Handler {
	return &Handler{
		Client:     client,
		DB:         db,
		Powerups:   powerups,
		Notifier:   notifier,
		AllowedIPs: utils.NewIPAllowList(allowedIPs),
		ReturnURL:  returnURL,
		Now:        time.Now,
	}
}

// Checkout creates a provider payment for a catalog pack and records it as pending.
func (h *Handler) Checkout(ctx context.Context, identity int64, pack powerup.Pack) (*PaymentResponse, error) {
	metadata := map[string]string{
		metaTelegramID: strconv.FormatInt(identity, 10),
		metaSKU:        pack.SKU,
		metaType:       typePowerup,
	}

	resp, err := h.Client.CreatePayment(ctx, pack.PriceRUB, "RUB", pack.Title, h.ReturnURL, metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	record := models.Payment{
		UserIdentity: identity,
		PackSKU:      pack.SKU,
		Amount:       pack.PriceRUB,
		Currency:     "RUB",
		Status:       StatusPending,
		YooKassaID:   resp.ID,
	}
	if err := h.DB.WithContext(ctx).Create(&record).Error; err != nil {
		zap.L().Error("Failed to record payment", zap.String("payment_id", resp.ID), zap.Error(err))
	}

	return resp, nil
}

func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.AllowedIPs.Empty() {
		ip := remoteIP(r)
		if !h.AllowedIPs.Contains(ip) {
			zap.L().Warn("Rejected webhook from unexpected address", zap.String("ip", ip))
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
	}

	var notification WebhookNotification
	if err := json.NewDecoder(r.Body).Decode(&notification); err != nil {
		zap.L().Warn("Failed to decode webhook", zap.Error(err))
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	switch notification.Event {
	case EventPaymentSucceeded:
		if err := h.processSuccess(r.Context(), notification.Object); err != nil {
			zap.L().Error("Failed to process payment success", zap.String("payment_id", notification.Object.ID), zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	case EventPaymentCanceled:
		h.setStatus(r.Context(), notification.Object.ID, StatusCanceled)
	default:
		zap.L().Info("Ignored event", zap.String("event", notification.Event))
	}

	w.WriteHeader(http.StatusOK)
}

func (h *Handler) processSuccess(ctx context.Context, obj WebhookObject) error {
	if obj.Metadata[metaType] != typePowerup {
		zap.L().Info("Ignored payment without powerup metadata", zap.String("payment_id", obj.ID))
		return nil
	}

	telegramID, err := strconv.ParseInt(obj.Metadata[metaTelegramID], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram_id: %w", err)
	}

	pack, ok := powerup.LookupPack(obj.Metadata[metaSKU])
	if !ok {
		return fmt.Errorf("unknown sku %q", obj.Metadata[metaSKU])
	}

	granted, err := h.Powerups.Add(ctx, pack.Grant(telegramID, powerup.ProviderYooKassa, obj.ID, h.Now()))
	if err != nil {
		return err
	}

	h.setStatus(ctx, obj.ID, StatusSucceeded)

	if granted == nil {
		zap.L().Info("Payment already granted", zap.String("payment_id", obj.ID))
		return nil
	}

	zap.L().Info("Powerup granted",
		zap.Int64("identity", telegramID),
		zap.String("sku", pack.SKU),
		zap.String("payment_id", obj.ID),
		zap.Bool("test", obj.Test),
	)
	if h.Notifier != nil {
		text := fmt.Sprintf("✅ Payment received! %s added to your account.", pack.Title)
		if err := h.Notifier.Notify(ctx, telegramID, text); err != nil {
			zap.L().Warn("Failed to notify buyer", zap.Int64("identity", telegramID), zap.Error(err))
		}
	}
	return nil
}

// setStatus updates the local payment record. A missing record is not an
// error because payments created outside Checkout have none.
func (h *Handler) setStatus(ctx context.Context, paymentID, status string) {
	err := h.DB.WithContext(ctx).Model(&models.Payment{}).
		Where("yoo_kassa_id = ?", paymentID).
		Update("status", status).Error
	if err != nil {
		zap.L().Error("Failed to update payment status", zap.String("payment_id", paymentID), zap.String("status", status), zap.Error(err))
	}
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
