package model

// Raw metric keys carried by inbound sensor messages. The enumeration is
// fixed: every snapshot has a value for each of these, falling back to the
// previous snapshot when a message omits or mangles a key.
var NumericKeys = []string{
	"PRESSURE_DST",
	"LVL_RES_WTP3",
	"TOTAL_FLOW_ITK",
	"TOTAL_FLOW_DST",
	"FLOW_WTP3",
	"FLOW_50_WTP1",
	"FLOW_CIJERUK",
	"FLOW_CARENANG",
}

// KeySelisihFlow is computed, never read from a message.
const KeySelisihFlow = "SELISIH_FLOW"

var DerivedKeys = []string{KeySelisihFlow}

// DisplayOrder is the tile order the page renderer expects from /api/meta.
var DisplayOrder = []string{
	"TOTAL_FLOW_ITK",
	"TOTAL_FLOW_DST",
	"SELISIH_FLOW",
	"FLOW_WTP3",
	"FLOW_50_WTP1",
	"FLOW_CIJERUK",
	"FLOW_CARENANG",
}

var TitleMap = map[string]string{
	"PRESSURE_DST":   "PRESSURE DISTRIBUSI",
	"LVL_RES_WTP3":   "LEVEL RESERVOIR WTP 3",
	"TOTAL_FLOW_ITK": "TOTAL FLOW INTAKE",
	"TOTAL_FLOW_DST": "TOTAL FLOW DISTRIBUSI",
	"SELISIH_FLOW":   "SELISIH TOTAL FLOW (INTAKE - DISTRIBUSI)",
	"FLOW_WTP3":      "FLOW WTP 3",
	"FLOW_50_WTP1":   "FLOW UPAM CIKANDE",
	"FLOW_CIJERUK":   "FLOW UPAM CIJERUK",
	"FLOW_CARENANG":  "FLOW UPAM CARENANG",
}

var UnitMap = map[string]string{
	"PRESSURE_DST":   "BAR",
	"LVL_RES_WTP3":   "M",
	"TOTAL_FLOW_ITK": "LPS",
	"TOTAL_FLOW_DST": "LPS",
	"SELISIH_FLOW":   "LPS",
	"FLOW_WTP3":      "LPS",
	"FLOW_50_WTP1":   "LPS",
	"FLOW_CIJERUK":   "LPS",
	"FLOW_CARENANG":  "LPS",
}

// Snapshot is the complete current value set for all raw and derived keys.
// It is always replaced as a whole, never mutated in place by readers.
type Snapshot map[string]float64

// DefaultSnapshot returns a snapshot with every key present at zero.
func DefaultSnapshot() Snapshot {
	s := make(Snapshot, len(NumericKeys)+len(DerivedKeys))
	for _, k := range NumericKeys {
		s[k] = 0.0
	}
	for _, k := range DerivedKeys {
		s[k] = 0.0
	}
	return s
}

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := make(Snapshot, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Point is one bucketed history sample.
type Point struct {
	Ts    int64   `json:"ts"`
	Value float64 `json:"value"`
}
