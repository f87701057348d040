package powerup

import (
	"strconv"
	"time"
)

const CodeEnergyRefill = "energy_refill"

const (
	ProviderYooKassa = "yookassa"
	ProviderTelegram = "telegram"
)

// Pack is a purchasable bundle of powerup units.
type Pack struct {
	SKU        string
	Code       string
	Title      string
	Quantity   int
	Duration   time.Duration
	PriceRUB   string
	PriceStars int
}

var Catalog = map[string]Pack{
	"refill_3": {
		SKU: "refill_3", Code: CodeEnergyRefill, Title: "3 energy refills",
		Quantity: 3, PriceRUB: "49.00", PriceStars: 25,
	},
	"refill_10": {
		SKU: "refill_10", Code: CodeEnergyRefill, Title: "10 energy refills",
		Quantity: 10, PriceRUB: "149.00", PriceStars: 75,
	},
	"refill_day": {
		SKU: "refill_day", Code: CodeEnergyRefill, Title: "Refill day pass",
		Quantity: 20, Duration: 24 * time.Hour, PriceRUB: "99.00", PriceStars: 50,
	},
}

func LookupPack(sku string) (Pack, bool) {
	p, ok := Catalog[sku]
	return p, ok
}

// Grant builds the entitlement a paid pack produces for identity.
func (p Pack) Grant(identity int64, provider, paymentID string, now time.Time) Grant {
	g := Grant{
		UserIdentity:      strconv.FormatInt(identity, 10),
		Code:              p.Code,
		PackSKU:           p.SKU,
		Provider:          provider,
		ProviderPaymentID: paymentID,
		Quantity:          p.Quantity,
	}
	if p.Duration > 0 {
		exp := now.Add(p.Duration)
		g.ExpiresAt = &exp
	}
	return g
}
