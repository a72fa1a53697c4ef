// Package predict scores a fixed set of give/get trade bundles against the
// counterpart's movement preferences and negotiation history.
package predict

import (
	"math"
	"sort"
	"strings"

	"github.com/owpa/negotiator/internal/deal"
	"github.com/owpa/negotiator/internal/memory"
)

const (
	minAcceptance = 0.05
	maxAcceptance = 0.95

	defaultBaseScore = 0.35
	historyBoost     = 0.10
	slotPressBoost   = 0.10

	maxRationale         = 3
	episodesForRationale = 3
	maxRankedOptions     = 3
	offerTokensMatched   = 2
)

type candidate struct {
	offer   string
	request string
}

// The candidate set is fixed and deliberately small so every option stays
// explainable. It is scored, never derived from input.
var candidates = []candidate{
	{"earlier milestone payment (improve cashflow)", "reduce headline uplift"},
	{"extend LTSA term by 2 years", "reduce headline uplift"},
	{"accept capped indexation (cap/floor + transparency)", "reduce base uplift now"},
	{"bundle critical spares package", "reduce service uplift / improve availability terms"},
	{"adjust delay LDs structure to capped LD + recovery plan (LDs = Liquidated Damages)", "reduce uplift / confirm slot"},
}

// Rank scores every candidate and returns the top ranked options, highest
// predicted acceptance first. Ties keep the declared candidate order.
func Rank(supplier memory.Supplier, ask *deal.Ask) []deal.TradeOption {
	if ask == nil {
		return nil
	}

	var historyParts []string
	for _, episode := range supplier.Episodes {
		historyParts = append(historyParts, episode.PrimaryTradeUsed)
	}
	historyText := strings.ToLower(strings.Join(historyParts, " "))

	options := make([]deal.TradeOption, 0, len(candidates))
	for _, cand := range candidates {
		offer := strings.ToLower(cand.offer)
		score := baseAcceptance(offer, supplier.MovementPreferences)

		if strings.Contains(historyText, offer) {
			score += historyBoost
		}
		if ask.Intent == deal.IntentSlotPressureDeadline &&
			(strings.Contains(offer, "ld") || strings.Contains(offer, "schedule")) {
			score += slotPressBoost
		}
		score = clamp(score)

		options = append(options, deal.TradeOption{
			WeOffer:             cand.offer,
			WeRequest:           cand.request,
			PredictedAcceptance: math.Round(score*100) / 100,
			Rationale:           rationaleFor(offer, supplier.Episodes),
		})
	}

	sort.SliceStable(options, func(i, j int) bool {
		return options[i].PredictedAcceptance > options[j].PredictedAcceptance
	})
	if len(options) > maxRankedOptions {
		options = options[:maxRankedOptions]
	}
	return options
}

// baseAcceptance dispatches the offer text onto the movement-preference
// lever it exercises. Order matters: "payment" wins before "milestone"-style
// overlaps further down.
func baseAcceptance(offer string, prefs memory.MovementPreferences) float64 {
	switch {
	case strings.Contains(offer, "payment"):
		return prefs.PaymentTerms
	case strings.Contains(offer, "ltsa"), strings.Contains(offer, "term"):
		return prefs.ServiceScope
	case strings.Contains(offer, "indexation"):
		return prefs.Price
	case strings.Contains(offer, "spares"), strings.Contains(offer, "service"):
		return prefs.ServiceScope
	case strings.Contains(offer, "ld"), strings.Contains(offer, "schedule"), strings.Contains(offer, "slot"):
		return prefs.ScheduleSlots
	}
	return defaultBaseScore
}

func rationaleFor(offer string, episodes []memory.Episode) []string {
	rationale := []string{
		"Supplier movement preference suggests this lever is negotiable (based on stored profile).",
	}

	tokens := strings.Fields(offer)
	if len(tokens) > offerTokensMatched {
		tokens = tokens[:offerTokensMatched]
	}

	limit := episodesForRationale
	if len(episodes) < limit {
		limit = len(episodes)
	}
	for _, episode := range episodes[:limit] {
		if episode.PrimaryTradeUsed == "" {
			continue
		}
		trade := strings.ToLower(episode.PrimaryTradeUsed)
		for _, token := range tokens {
			if strings.Contains(trade, token) {
				rationale = append(rationale, "Similar trade appeared in prior negotiation context: '"+episode.Context+"'.")
				break
			}
		}
		if len(rationale) > 1 {
			break
		}
	}

	if len(rationale) > maxRationale {
		rationale = rationale[:maxRationale]
	}
	return rationale
}

func clamp(score float64) float64 {
	if score < minAcceptance {
		return minAcceptance
	}
	if score > maxAcceptance {
		return maxAcceptance
	}
	return score
}
