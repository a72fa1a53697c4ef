package compose

// Glossary terms the draft composer scans for, in detection order. The
// definitions travel with the draft so a rendering surface can auto-explain
// them.
var glossaryOrder = []string{"WTG", "LTSA", "LDs", "Indexation", "Availability guarantee"}

var Glossary = map[string]string{
	"WTG":                    "Wind Turbine Generator: the turbine supply scope (turbine unit and associated deliverables).",
	"LTSA":                   "Long-Term Service Agreement: multi-year service/maintenance contract for the turbines.",
	"LDs":                    "Liquidated Damages: pre-agreed penalties for specific failures (e.g., delay), often capped.",
	"Availability guarantee": "Commitment that turbines are available to generate for a % of time; definition and exclusions matter.",
	"Indexation":             "Price adjustment mechanism tied to an agreed index (e.g., inflation/materials), often with a cap/floor.",
	"Consequential damages":  "Indirect losses (e.g., lost revenue). Often excluded or limited in contracts.",
}
