package model

// RosterEntry is one person/date/shift record from the roster file. The date
// is epoch milliseconds at UTC midnight. Missing shift bounds mean the entry
// is an off-duty assignment.
type RosterEntry struct {
	Date       int64   `json:"tanggal"`
	Name       string  `json:"nama"`
	Role       string  `json:"jabatan"`
	ShiftCode  string  `json:"shift_kode"`
	WorkHours  string  `json:"jam_kerja"`
	Location   string  `json:"lokasi"`
	ShiftStart *string `json:"jam_mulai"`
	ShiftEnd   *string `json:"jam_selesai"`
}

// Assignment is the projection of a roster entry served for one duty group.
type Assignment struct {
	Name     string `json:"nama"`
	Code     string `json:"kode"`
	Hours    string `json:"jam"`
	Location string `json:"lokasi"`
}

// RosterMeta describes the last roster load for observability.
type RosterMeta struct {
	LoadedAt string  `json:"loaded_at"`
	Error    *string `json:"error"`
	Source   string  `json:"file"`
}
