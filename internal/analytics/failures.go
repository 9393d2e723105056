package analytics

import (
	"sort"

	"smcPaperBot/internal/domain"
)

// nearMissR is how far a losing trade must have moved in its favor before
// reversing to count as a near miss.
const nearMissR = 1.0

// FailureReport breaks down the losing trades to show where the strategy
// leaks: which patterns lose, which direction loses, and how many losers
// were winners first.
type FailureReport struct {
	LosingTrades int `json:"losingTrades"`

	// NearMisses reached at least nearMissR in favor before closing at a
	// loss. A high count suggests exits are too loose.
	NearMisses int `json:"nearMisses"`

	// FastLosses never moved meaningfully in favor (under 0.25R peak).
	FastLosses int `json:"fastLosses"`

	AverageLossR       float64 `json:"averageLossR"`
	AverageFavorableR  float64 `json:"averageFavorableR"`
	AverageBarsInTrade float64 `json:"averageBarsInTrade"`

	ByDirection map[domain.Direction]int `json:"byDirection"`
	ByOutcome   map[domain.Outcome]int   `json:"byOutcome"`
	ByPattern   []PatternLosses          `json:"byPattern"`
}

// PatternLosses counts losses attributed to one signal pattern.
type PatternLosses struct {
	Pattern string  `json:"pattern"`
	Count   int     `json:"count"`
	TotalR  float64 `json:"totalR"`
}

// AverageR is the mean realized R across the pattern's losses.
func (p PatternLosses) AverageR() float64 {
	if p.Count == 0 {
		return 0
	}
	return p.TotalR / float64(p.Count)
}

// AnalyzeFailures inspects the losing subset of trades.
func AnalyzeFailures(trades []*domain.Trade) *FailureReport {
	fr := &FailureReport{
		ByDirection: make(map[domain.Direction]int),
		ByOutcome:   make(map[domain.Outcome]int),
	}
	patterns := make(map[string]*PatternLosses)

	var sumLoss, sumFav float64
	var sumBars int
	for _, t := range trades {
		if !t.Outcome.Terminal() || t.IsWin() {
			continue
		}
		fr.LosingTrades++
		fr.ByDirection[t.Direction]++
		fr.ByOutcome[t.Outcome]++
		sumLoss += t.RMultiple
		sumFav += t.MaxFavorableR
		sumBars += t.BarsInTrade

		if t.MaxFavorableR >= nearMissR {
			fr.NearMisses++
		} else if t.MaxFavorableR < 0.25 {
			fr.FastLosses++
		}

		if t.Signal != nil {
			for _, p := range t.Signal.Patterns {
				pl, ok := patterns[p]
				if !ok {
					pl = &PatternLosses{Pattern: p}
					patterns[p] = pl
				}
				pl.Count++
				pl.TotalR += t.RMultiple
			}
		}
	}

	if fr.LosingTrades > 0 {
		n := float64(fr.LosingTrades)
		fr.AverageLossR = sumLoss / n
		fr.AverageFavorableR = sumFav / n
		fr.AverageBarsInTrade = float64(sumBars) / n
	}

	fr.ByPattern = make([]PatternLosses, 0, len(patterns))
	for _, pl := range patterns {
		fr.ByPattern = append(fr.ByPattern, *pl)
	}
	sort.Slice(fr.ByPattern, func(i, j int) bool {
		if fr.ByPattern[i].Count != fr.ByPattern[j].Count {
			return fr.ByPattern[i].Count > fr.ByPattern[j].Count
		}
		return fr.ByPattern[i].Pattern < fr.ByPattern[j].Pattern
	})
	return fr
}
