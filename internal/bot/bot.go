package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	th "github.com/mymmrac/telego/telegohandler"
	tu "github.com/mymmrac/telego/telegoutil"
	"go.uber.org/zap"

	"tapcoin-bot/internal/identity"
	"tapcoin-bot/internal/ledger"
	"tapcoin-bot/internal/models"
	"tapcoin-bot/internal/powerup"
)

const (
	starsCurrency     = "XTR"
	callbackShop      = "shop"
	callbackBuyPrefix = "buy:"
)

// Sender is the subset of the Bot API the handlers call.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
	SendInvoice(ctx context.Context, params *telego.SendInvoiceParams) (*telego.Message, error)
	AnswerPreCheckoutQuery(ctx context.Context, params *telego.AnswerPreCheckoutQueryParams) error
	AnswerCallbackQuery(ctx context.Context, params *telego.AnswerCallbackQueryParams) error
}

type Players interface {
	GetOrCreateUser(ctx context.Context, id int64, referralCode string, profile ledger.Profile) (*models.User, bool, error)
}

type Granter interface {
	Add(ctx context.Context, g powerup.Grant) (*models.Powerup, error)
}

// Schema blocks until the database schema exists.
type Schema interface {
	Ensure(ctx context.Context) error
}

type Bot struct {
	Instance    *telego.Bot
	sender      Sender
	players     Players
	powerups    Granter
	schema      Schema
	botUsername string
	webAppURL   string
	now         func() time.Time
}

func NewBot(token string, players Players, powerups Granter, schema Schema, botUsername, webAppURL string) (*Bot, error) {
	tgBot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &Bot{
		Instance:    tgBot,
		sender:      tgBot,
		players:     players,
		powerups:    powerups,
		schema:      schema,
		botUsername: botUsername,
		webAppURL:   webAppURL,
		now:         time.Now,
	}, nil
}

// Start long-polls for updates and blocks until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	updates, err := b.Instance.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start long polling: %w", err)
	}

	handler, err := th.NewBotHandler(b.Instance, updates)
	if err != nil {
		return fmt.Errorf("failed to create bot handler: %w", err)
	}

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.handleStart(ctx.Context(), update.Message)
		return nil
	}, th.CommandEqual("start"))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.sendShop(ctx.Context(), update.Message.Chat.ID)
		return nil
	}, th.CommandEqual("shop"))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		b.sendShop(ctx.Context(), callback.From.ID)
		_ = b.sender.AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataEqual(callbackShop))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		callback := update.CallbackQuery
		b.sendInvoice(ctx.Context(), callback.From.ID, strings.TrimPrefix(callback.Data, callbackBuyPrefix))
		_ = b.sender.AnswerCallbackQuery(ctx.Context(), tu.CallbackQuery(callback.ID))
		return nil
	}, th.CallbackDataPrefix(callbackBuyPrefix))

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.handlePreCheckout(ctx.Context(), update.PreCheckoutQuery)
		return nil
	}, th.AnyPreCheckoutQuery())

	handler.Handle(func(ctx *th.Context, update telego.Update) error {
		b.handleSuccessfulPayment(ctx.Context(), update.Message)
		return nil
	}, hasSuccessfulPayment)

	handler.Start()
	return nil
}

func hasSuccessfulPayment(_ context.Context, update telego.Update) bool {
	return update.Message != nil && update.Message.SuccessfulPayment != nil
}

// startPayload returns the argument of a "/start <payload>" command.
func startPayload(text string) string {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func (b *Bot) ensureSchema(ctx context.Context) error {
	if b.schema == nil {
		return nil
	}
	if err := b.schema.Ensure(ctx); err != nil {
		zap.L().Error("Schema bootstrap failed", zap.Error(err))
		return err
	}
	return nil
}

func (b *Bot) inviteLink(id int64) string {
	if b.botUsername == "" {
		return ""
	}
	return "https://t.me/" + b.botUsername + "?start=" + identity.ReferralCode(id)
}

func (b *Bot) welcomeKeyboard() *telego.InlineKeyboardMarkup {
	rows := [][]telego.InlineKeyboardButton{}
	if b.webAppURL != "" {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("🪙 Play").WithWebApp(&telego.WebAppInfo{URL: b.webAppURL}),
		))
	}
	rows = append(rows, tu.InlineKeyboardRow(
		tu.InlineKeyboardButton("⚡ Energy shop").WithCallbackData(callbackShop),
	))
	return tu.InlineKeyboard(rows...)
}

func (b *Bot) welcomeText(name string, user *models.User) string {
	if name == "" {
		name = "there"
	}
	text := fmt.Sprintf("Hi, %s! 👋\n\nTap the coin to earn points.\n\n💰 Balance: %d\n👥 Friends invited: %d",
		name, user.Balance, user.ReferralCount)
	if link := b.inviteLink(user.Identity); link != "" {
		text += "\n\n🔗 Your invite link:\n" + link
	}
	return text
}

func (b *Bot) handleStart(ctx context.Context, message *telego.Message) {
	if message == nil || message.From == nil {
		return
	}
	if err := b.ensureSchema(ctx); err != nil {
		b.send(ctx, message.Chat.ID, "❌ Something went wrong. Please try again later.", nil)
		return
	}

	from := message.From
	code := identity.StripReferralPrefix(startPayload(message.Text))

	user, created, err := b.players.GetOrCreateUser(ctx, from.ID, code, ledger.Profile{
		Username:     from.Username,
		LanguageCode: from.LanguageCode,
	})
	if err != nil {
		zap.L().Error("Failed to get or create user", zap.Int64("identity", from.ID), zap.Error(err))
		b.send(ctx, message.Chat.ID, "❌ Something went wrong. Please try again later.", nil)
		return
	}
	if created {
		zap.L().Info("User joined via bot", zap.Int64("identity", from.ID), zap.String("referral_code", code))
	}

	b.send(ctx, message.Chat.ID, b.welcomeText(from.FirstName, user), b.welcomeKeyboard())
}

func sortedPacks() []powerup.Pack {
	packs := make([]powerup.Pack, 0, len(powerup.Catalog))
	for _, p := range powerup.Catalog {
		packs = append(packs, p)
	}
	sort.Slice(packs, func(i, j int) bool { return packs[i].PriceStars < packs[j].PriceStars })
	return packs
}

func (b *Bot) sendShop(ctx context.Context, chatID int64) {
	rows := [][]telego.InlineKeyboardButton{}
	for _, p := range sortedPacks() {
		rows = append(rows, tu.InlineKeyboardRow(
			tu.InlineKeyboardButton(fmt.Sprintf("%s ⭐ %d", p.Title, p.PriceStars)).WithCallbackData(callbackBuyPrefix+p.SKU),
		))
	}
	b.send(ctx, chatID, "⚡ Energy shop\n\nEach refill restores your energy to full.", tu.InlineKeyboard(rows...))
}

func (b *Bot) sendInvoice(ctx context.Context, chatID int64, sku string) {
	pack, ok := powerup.LookupPack(sku)
	if !ok {
		b.send(ctx, chatID, "❌ This item is no longer available.", nil)
		return
	}

	description := fmt.Sprintf("%d energy refills", pack.Quantity)
	if pack.Duration > 0 {
		description += fmt.Sprintf(", valid for %d hours", int(pack.Duration.Hours()))
	}

	_, err := b.sender.SendInvoice(ctx, &telego.SendInvoiceParams{
		ChatID:      tu.ID(chatID),
		Title:       pack.Title,
		Description: description,
		Payload:     pack.SKU,
		Currency:    starsCurrency,
		Prices:      []telego.LabeledPrice{{Label: pack.Title, Amount: pack.PriceStars}},
	})
	if err != nil {
		zap.L().Error("Failed to send invoice", zap.Int64("chat_id", chatID), zap.String("sku", sku), zap.Error(err))
	}
}

func (b *Bot) handlePreCheckout(ctx context.Context, query *telego.PreCheckoutQuery) {
	if query == nil {
		return
	}

	params := &telego.AnswerPreCheckoutQueryParams{PreCheckoutQueryID: query.ID, Ok: true}
	pack, ok := powerup.LookupPack(query.InvoicePayload)
	if err := b.ensureSchema(ctx); err != nil {
		params.Ok = false
		params.ErrorMessage = "The shop is temporarily unavailable. Please try again later."
	} else if !ok || query.Currency != starsCurrency || query.TotalAmount != pack.PriceStars {
		params.Ok = false
		params.ErrorMessage = "This item is no longer available."
		zap.L().Warn("Rejected pre-checkout query",
			zap.Int64("identity", query.From.ID),
			zap.String("payload", query.InvoicePayload),
			zap.Int("amount", query.TotalAmount),
		)
	}

	if err := b.sender.AnswerPreCheckoutQuery(ctx, params); err != nil {
		zap.L().Error("Failed to answer pre-checkout query", zap.String("query_id", query.ID), zap.Error(err))
	}
}

func (b *Bot) handleSuccessfulPayment(ctx context.Context, message *telego.Message) {
	if message == nil || message.From == nil || message.SuccessfulPayment == nil {
		return
	}
	paid := message.SuccessfulPayment
	identityID := message.From.ID

	if err := b.ensureSchema(ctx); err != nil {
		zap.L().Error("Payment received while store is unavailable",
			zap.Int64("identity", identityID),
			zap.String("charge_id", paid.TelegramPaymentChargeID),
		)
		b.send(ctx, message.Chat.ID, "❌ Payment received but the refill could not be added. Support will sort it out.", nil)
		return
	}

	pack, ok := powerup.LookupPack(paid.InvoicePayload)
	if !ok {
		zap.L().Error("Payment for unknown pack",
			zap.Int64("identity", identityID),
			zap.String("payload", paid.InvoicePayload),
			zap.String("charge_id", paid.TelegramPaymentChargeID),
		)
		return
	}

	granted, err := b.powerups.Add(ctx, pack.Grant(identityID, powerup.ProviderTelegram, paid.TelegramPaymentChargeID, b.now()))
	if err != nil {
		zap.L().Error("Failed to grant powerup", zap.Int64("identity", identityID), zap.String("charge_id", paid.TelegramPaymentChargeID), zap.Error(err))
		b.send(ctx, message.Chat.ID, "❌ Payment received but the refill could not be added. Support will sort it out.", nil)
		return
	}
	if granted == nil {
		zap.L().Info("Duplicate payment ignored", zap.String("charge_id", paid.TelegramPaymentChargeID))
		return
	}

	zap.L().Info("Powerup purchased",
		zap.Int64("identity", identityID),
		zap.String("sku", pack.SKU),
		zap.String("powerup_id", granted.ID),
	)
	b.send(ctx, message.Chat.ID, fmt.Sprintf("✅ %s added. Open the game to use them.", pack.Title), b.welcomeKeyboard())
}

// Notify sends a plain text message to a player.
func (b *Bot) Notify(ctx context.Context, id int64, text string) error {
	if _, err := b.sender.SendMessage(ctx, tu.Message(tu.ID(id), text)); err != nil {
		return fmt.Errorf("failed to notify %d: %w", id, err)
	}
	return nil
}

func (b *Bot) send(ctx context.Context, chatID int64, text string, keyboard *telego.InlineKeyboardMarkup) {
	msg := tu.Message(tu.ID(chatID), text)
	if keyboard != nil {
		msg = msg.WithReplyMarkup(keyboard)
	}
	if _, err := b.sender.SendMessage(ctx, msg); err != nil {
		zap.L().Warn("Failed to send message", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
