// Package triage turns raw detections into deduplicated, tiered alerts
// across the civilian and official notification channels.
package triage

import "fmt"

// Tier is the severity classification of a detected species.
type Tier string

const (
	TierDangerous    Tier = "dangerous"
	TierEndangered   Tier = "endangered"
	TierUnclassified Tier = "unclassified"
)

// Species describes one entry of the fixed class table. English names key
// storage; Nepali names appear in outbound alert text.
type Species struct {
	ClassID int
	English string
	Nepali  string
	Tier    Tier
}

// speciesTable is the fixed class-id mapping. Dangerous species fan out to
// civilian and official channels, endangered species to officials only.
var speciesTable = map[int]Species{
	0: {ClassID: 0, English: "elephant", Nepali: "हात्ती", Tier: TierDangerous},
	1: {ClassID: 1, English: "leopard", Nepali: "चितुवा", Tier: TierDangerous},
	2: {ClassID: 2, English: "rhino", Nepali: "गैंडा", Tier: TierDangerous},
	3: {ClassID: 3, English: "tiger", Nepali: "बाघ", Tier: TierDangerous},
	4: {ClassID: 4, English: "red_panda", Nepali: "रातो पाण्डा", Tier: TierEndangered},
}

// LookupSpecies returns the table entry for classID. Unknown class ids map
// to the unclassified tier and never alert.
func LookupSpecies(classID int) Species {
	if species, ok := speciesTable[classID]; ok {
		return species
	}
	return Species{ClassID: classID, English: fmt.Sprintf("class_%d", classID), Tier: TierUnclassified}
}

// TierLabelNepali returns the Nepali adjective used in alert text.
func TierLabelNepali(tier Tier) string {
	if tier == TierDangerous {
		return "खतरनाक"
	}
	return "लोपोन्मुख"
}
