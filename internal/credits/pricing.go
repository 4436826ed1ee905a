package credits

import "storyforge/internal/domain"

// FreeCreditsOnRegister is granted once per new account as a welcome bonus.
const FreeCreditsOnRegister = 2

// Pack is one purchasable credit bundle. Checkout only accepts credit counts
// that exactly match a pack.
type Pack struct {
	Credits       int
	Price         domain.Money
	PerCredit     domain.Money
	Label         string
	ExternalPrice string
}

// PackTable is the fixed ordered list of purchasable packs, with each pack's
// external payment price reference resolved from configuration.
type PackTable struct {
	packs []Pack
}

// NewPackTable binds the fixed pack definitions to the configured external
// price identifiers. An empty identifier leaves the pack visible but not
// purchasable.
func NewPackTable(priceID5, priceID15, priceID50 string) *PackTable {
	return &PackTable{packs: []Pack{
		{Credits: 5, Price: domain.MoneyFromCents(499), PerCredit: domain.MoneyFromCents(100), Label: "5 Credits", ExternalPrice: priceID5},
		{Credits: 15, Price: domain.MoneyFromCents(1299), PerCredit: domain.MoneyFromCents(87), Label: "15 Credits", ExternalPrice: priceID15},
		{Credits: 50, Price: domain.MoneyFromCents(3499), PerCredit: domain.MoneyFromCents(70), Label: "50 Credits", ExternalPrice: priceID50},
	}}
}

// Packs returns the ordered pack list.
func (t *PackTable) Packs() []Pack {
	return t.packs
}

// ByCredits returns the pack matching the exact credit count.
func (t *PackTable) ByCredits(credits int) (Pack, bool) {
	for _, p := range t.packs {
		if p.Credits == credits {
			return p, true
		}
	}
	return Pack{}, false
}

// Per-model rate tables. Rates are configuration, not logic: unknown ids
// fall back to the documented default model rate.

type tokenRate struct {
	inPer1K  domain.Money
	outPer1K domain.Money
}

const (
	defaultGenerationModel = "gpt-4o"
	defaultCoverProvider   = "dalle3"
	defaultSynthesisModel  = "gpt-4o-mini-tts"
)

var generationRates = map[string]tokenRate{
	"gpt-4o":       {inPer1K: 2_500, outPer1K: 10_000},
	"gpt-4o-mini":  {inPer1K: 150, outPer1K: 600},
	"gpt-4.1":      {inPer1K: 2_000, outPer1K: 8_000},
	"gpt-4.1-mini": {inPer1K: 400, outPer1K: 1_600},
}

var coverRates = map[string]domain.Money{
	"dalle3":  40_000,
	"imagen3": 30_000,
}

// Synthesis rates are per one million characters.
var synthesisRates = map[string]domain.Money{
	"gpt-4o-mini-tts": 15_000_000,
	"tts-1":           15_000_000,
	"tts-1-hd":        30_000_000,
}

// CostBGMPerTrack is the flat rate charged when a background-music track is
// mixed into a story.
const CostBGMPerTrack = domain.Money(50_000)
