package compose

import (
	"fmt"
	"strings"

	"github.com/owpa/negotiator/internal/deal"
)

const (
	draftSubject    = "Re: WTG + LTSA commercial alignment and next steps"
	draftTone       = "professional_firm"
	draftDisclaimer = "Draft is based on the current email context; please verify numbers/dates against the source message before sending."
)

// Draft builds the external reply. The body stays procurement-safe: no
// internal targets, no invented numbers, only the supplier's own stated
// figures. Glossary detection scans the finished body for each term in
// glossary order, not order of appearance.
func Draft(state *deal.State, tradeOptions []deal.TradeOption) deal.EmailDraft {
	ask := state.SupplierAsk

	var chosen *deal.TradeOption
	if len(tradeOptions) > 0 {
		chosen = &tradeOptions[0]
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Dear %s team,", state.SupplierName))
	lines = append(lines, "")
	lines = append(lines, "Thank you for your message. We have reviewed your latest note and would like to align on a path that preserves schedule certainty and a bankable risk profile.")
	lines = append(lines, "")

	if ask != nil && ask.HeadlinePct != nil {
		lines = append(lines, fmt.Sprintf(
			"You referenced a requested adjustment of %.1f%%. To progress efficiently, please share a brief breakdown of the drivers and whether a capped indexation approach could cover part of the exposure.",
			ask.HeadlinePct.Value,
		))
	} else {
		lines = append(lines, "To progress efficiently, please share a brief breakdown of the commercial drivers and whether a capped indexation approach could cover part of the exposure.")
	}
	lines = append(lines, "")

	if chosen != nil {
		lines = append(lines, "From our side, we suggest the following trade package to close the gap:")
		lines = append(lines, fmt.Sprintf("- We can offer: %s", chosen.WeOffer))
		lines = append(lines, fmt.Sprintf("- In return, we request: %s", chosen.WeRequest))
		lines = append(lines, "")
		lines = append(lines, "If this direction works, we can turn it quickly into an updated commercial note and an agreed next step on the contract schedule.")
	} else {
		lines = append(lines, "From our side, we suggest aligning via a balanced give/get package (commercial + risk allocation) and then confirming the next step on the contract schedule.")
	}

	lines = append(lines, "")
	lines = append(lines, "Best regards,")
	lines = append(lines, "Procurement Team")

	body := strings.Join(lines, "\n")

	var glossaryUsed []string
	for _, term := range glossaryOrder {
		if strings.Contains(body, term) {
			glossaryUsed = append(glossaryUsed, term)
		}
	}

	return deal.EmailDraft{
		Subject:               draftSubject,
		Body:                  body,
		Tone:                  draftTone,
		GlossaryTermsUsed:     glossaryUsed,
		MissingInfoDisclaimer: draftDisclaimer,
	}
}
