package model

// QCParam describes one tracked column of the external quality-control feed.
type QCParam struct {
	Label string
	Col   string
	Unit  string
}

// ParamSisaChlor carries its own last-update marker, separate from the
// general QC one.
const ParamSisaChlor = "sisa_chlor"

var QCParams = map[string]QCParam{
	"kekeruhan":    {Label: "KEKERUHAN", Col: "Kekeruhan", Unit: "NTU"},
	"warna":        {Label: "WARNA", Col: "Warna", Unit: "TCU"},
	"ph":           {Label: "PH", Col: "pH", Unit: ""},
	ParamSisaChlor: {Label: "SISA CHLOR", Col: "Sisa Chlor", Unit: "MG/L"},
}

var QCOrder = []string{"kekeruhan", "warna", "ph", ParamSisaChlor}

// QCRow is one parsed feed line. A nil value means the column had no usable
// reading on that line; it is distinct from a reading of zero and stays nil
// through every downstream query.
type QCRow struct {
	Ts     int64               `json:"ts"`
	DT     string              `json:"dt"`
	Values map[string]*float64 `json:"values"`
}

// QCLatest is the newest non-nil reading for one parameter. Different
// parameters may point at different rows.
type QCLatest struct {
	Ts    *int64   `json:"ts"`
	DT    string   `json:"dt"`
	Value *float64 `json:"value"`
}

// QCStatus reports the last refresh outcome for observability.
type QCStatus struct {
	LastSuccess string   `json:"last_success_dt"`
	LastError   *string  `json:"last_error"`
	RowCount    int      `json:"row_count"`
	Headers     []string `json:"headers"`
}

// QCSummary is the pull shape served to clients and diffed by the dispatcher.
type QCSummary struct {
	Ts              int64               `json:"ts"`
	QCLastUpdate    string              `json:"qc_last_update"`
	ChlorLastUpdate string              `json:"chlor_last_update"`
	Latest          map[string]QCLatest `json:"latest"`
	Status          QCStatus            `json:"status"`
}

// EmptyQCLatest returns the pre-first-refresh latest map: every tracked
// parameter present with no reading.
func EmptyQCLatest() map[string]QCLatest {
	m := make(map[string]QCLatest, len(QCOrder))
	for _, p := range QCOrder {
		m[p] = QCLatest{DT: "-"}
	}
	return m
}
