package credits

import "storyforge/internal/domain"

// Pure cost estimation. All functions are stateless, total, and return
// amounts in micro-units so repeated summation never drifts.

// EstimateGenerationCost converts token usage into the content-generation
// cost for the given model. Unknown models use the default model's rate.
func EstimateGenerationCost(promptTokens, completionTokens int, model string) domain.Money {
	rate, ok := generationRates[model]
	if !ok {
		rate = generationRates[defaultGenerationModel]
	}
	in := domain.Money(promptTokens) * rate.inPer1K / 1_000
	out := domain.Money(completionTokens) * rate.outPer1K / 1_000
	return in + out
}

// EstimateCoverCost returns the per-image cost for the given provider.
func EstimateCoverCost(provider string) domain.Money {
	if rate, ok := coverRates[provider]; ok {
		return rate
	}
	return coverRates[defaultCoverProvider]
}

// EstimateSynthesisCost converts a synthesized character count into the
// speech-synthesis cost for the given model.
func EstimateSynthesisCost(totalChars int, model string) domain.Money {
	rate, ok := synthesisRates[model]
	if !ok {
		rate = synthesisRates[defaultSynthesisModel]
	}
	return domain.Money(totalChars) * rate / 1_000_000
}
