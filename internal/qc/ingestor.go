package qc

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/lib/logger/sl"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/model"
)

const displayTimeLayout = "2006-01-02 15:04"

// Accepted row timestamp layouts, tried in order. A row matching none of
// them is unusable and skipped entirely.
var dtLayouts = []string{
	"2006-01-02 15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

var dtColCandidates = []string{"DateTime", "Datetime", "DATE TIME", "Date Time"}

var paramColCandidates = map[string][]string{
	"kekeruhan":          {"Kekeruhan"},
	"warna":              {"Warna"},
	"ph":                 {"pH", "PH"},
	model.ParamSisaChlor: {"Sisa Chlor", "SisaChlor"},
}

// Publisher receives the QC summary after every refresh cycle.
type Publisher interface {
	SetQC(summary model.QCSummary)
}

// Ingestor periodically pulls the external QC feed, keeps the parsed row set
// in memory, and maintains the per-parameter latest index. It is the
// exclusive writer of that state; a failed cycle leaves the previous state
// untouched.
type Ingestor struct {
	log       *slog.Logger
	url       string
	interval  time.Duration
	client    *http.Client
	publisher Publisher

	mu              sync.RWMutex
	rows            []model.QCRow
	latest          map[string]model.QCLatest
	lastUpdate      string
	chlorLastUpdate string
	status          model.QCStatus
}

func NewIngestor(log *slog.Logger, url string, interval, timeout time.Duration, publisher Publisher) *Ingestor {
	return &Ingestor{
		log:      log,
		url:      url,
		interval: interval,
		client: &http.Client{
			Timeout: timeout,
		},
		publisher:       publisher,
		latest:          model.EmptyQCLatest(),
		lastUpdate:      "-",
		chlorLastUpdate: "-",
		status: model.QCStatus{
			LastSuccess: "-",
			Headers:     []string{},
		},
	}
}

// Run pulls once immediately, then on every tick. Cycle failures are logged
// and recorded in the status; the loop never stops on errors.
func (g *Ingestor) Run(ctx context.Context) {
	g.refreshAndRecord(ctx)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			g.log.Info("qc ingestor stopped")
			return
		case <-ticker.C:
			g.refreshAndRecord(ctx)
		}
	}
}

func (g *Ingestor) refreshAndRecord(ctx context.Context) {
	if err := g.refresh(ctx); err != nil {
		msg := err.Error()
		g.mu.Lock()
		g.status.LastError = &msg
		g.mu.Unlock()
		g.log.Error("qc pull failed", sl.Err(err))
	}

	if g.publisher != nil {
		g.publisher.SetQC(g.Latest())
	}
}

func (g *Ingestor) refresh(ctx context.Context) error {
	sep := "?"
	if strings.Contains(g.url, "?") {
		sep = "&"
	}
	url := fmt.Sprintf("%s%s_=%d", g.url, sep, time.Now().Unix())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (QC-Dashboard)")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return fmt.Errorf("failed to parse csv: %w", err)
	}
	if len(records) == 0 {
		return fmt.Errorf("feed returned no header row")
	}

	headers := records[0]

	dtCol := findCol(headers, dtColCandidates)
	paramCols := make(map[string]int, len(model.QCOrder))
	for _, p := range model.QCOrder {
		paramCols[p] = findCol(headers, paramColCandidates[p])
	}

	rows := parseRows(records[1:], dtCol, paramCols)

	sort.Slice(rows, func(i, j int) bool { return rows[i].Ts < rows[j].Ts })

	latest := buildLatest(rows)

	chlorDT := "-"
	if l := latest[model.ParamSisaChlor]; l.Ts != nil {
		chlorDT = l.DT
	}
	qcDT := generalLastUpdate(rows, latest)

	g.mu.Lock()
	g.rows = rows
	g.latest = latest
	g.lastUpdate = qcDT
	g.chlorLastUpdate = chlorDT
	g.status = model.QCStatus{
		LastSuccess: time.Now().Format("2006-01-02 15:04:05"),
		LastError:   nil,
		RowCount:    len(rows),
		Headers:     headers,
	}
	g.mu.Unlock()

	g.log.Debug("qc feed refreshed", slog.Int("rows", len(rows)))
	return nil
}

func parseRows(records [][]string, dtCol int, paramCols map[string]int) []model.QCRow {
	rows := make([]model.QCRow, 0, len(records))

	for _, rec := range records {
		dt, ok := parseDT(field(rec, dtCol))
		if !ok {
			continue
		}

		values := make(map[string]*float64, len(paramCols))
		for p, col := range paramCols {
			values[p] = parseFloat(field(rec, col))
		}

		rows = append(rows, model.QCRow{
			Ts:     dt.Unix(),
			DT:     dt.Format(displayTimeLayout),
			Values: values,
		})
	}

	return rows
}

// buildLatest scans newest-to-oldest independently per parameter: the latest
// reading for one column may come from a different row than another's.
func buildLatest(rows []model.QCRow) map[string]model.QCLatest {
	latest := model.EmptyQCLatest()

	for _, p := range model.QCOrder {
		for i := len(rows) - 1; i >= 0; i-- {
			if v := rows[i].Values[p]; v != nil {
				ts := rows[i].Ts
				latest[p] = model.QCLatest{Ts: &ts, DT: rows[i].DT, Value: v}
				break
			}
		}
	}

	return latest
}

// generalLastUpdate is the display time of the newest reading across the
// tracked parameters other than the chlorine marker.
func generalLastUpdate(rows []model.QCRow, latest map[string]model.QCLatest) string {
	var maxTs *int64
	for _, p := range model.QCOrder {
		if p == model.ParamSisaChlor {
			continue
		}
		if l := latest[p]; l.Ts != nil && (maxTs == nil || *l.Ts > *maxTs) {
			maxTs = l.Ts
		}
	}
	if maxTs == nil {
		return "-"
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if rows[i].Ts == *maxTs {
			return rows[i].DT
		}
	}
	return "-"
}

// Latest serves the pull shape unconditionally, defaults included.
func (g *Ingestor) Latest() model.QCSummary {
	g.mu.RLock()
	defer g.mu.RUnlock()

	latest := make(map[string]model.QCLatest, len(g.latest))
	for p, l := range g.latest {
		latest[p] = l
	}

	status := g.status
	status.Headers = append([]string(nil), g.status.Headers...)

	return model.QCSummary{
		Ts:              time.Now().Unix(),
		QCLastUpdate:    g.lastUpdate,
		ChlorLastUpdate: g.chlorLastUpdate,
		Latest:          latest,
		Status:          status,
	}
}

// History buckets the cached rows for one parameter over the lookback
// window, same anchored-bucket semantics as the measurement store. Unknown
// parameters yield an empty result.
func (g *Ingestor) History(param string, hours float64, interval int) []model.Point {
	if _, ok := model.QCParams[param]; !ok {
		return []model.Point{}
	}
	if interval <= 0 {
		interval = 3600
	}
	start := time.Now().Unix() - int64(hours*3600)

	g.mu.RLock()
	rows := g.rows
	g.mu.RUnlock()

	type acc struct {
		sum float64
		n   int
	}
	buckets := make(map[int64]*acc)

	for _, r := range rows {
		v := r.Values[param]
		if r.Ts < start || v == nil {
			continue
		}
		b := (r.Ts / int64(interval)) * int64(interval)
		if buckets[b] == nil {
			buckets[b] = &acc{}
		}
		buckets[b].sum += *v
		buckets[b].n++
	}

	keys := make([]int64, 0, len(buckets))
	for b := range buckets {
		keys = append(keys, b)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	out := make([]model.Point, 0, len(keys))
	for _, b := range keys {
		a := buckets[b]
		out = append(out, model.Point{Ts: b, Value: a.sum / float64(a.n)})
	}
	return out
}

// LastN returns the n most recent non-null readings, ascending.
func (g *Ingestor) LastN(param string, n int) []model.Point {
	if _, ok := model.QCParams[param]; !ok {
		return []model.Point{}
	}
	if n <= 0 {
		n = 5
	}

	g.mu.RLock()
	rows := g.rows
	g.mu.RUnlock()

	out := make([]model.Point, 0, n)
	for i := len(rows) - 1; i >= 0 && len(out) < n; i-- {
		if v := rows[i].Values[param]; v != nil {
			out = append(out, model.Point{Ts: rows[i].Ts, Value: *v})
		}
	}

	// collected newest-first, serve ascending
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

func field(rec []string, col int) string {
	if col < 0 || col >= len(rec) {
		return ""
	}
	return rec[col]
}

// findCol resolves a logical column against the actual header names: exact
// normalized match first, then substring containment. -1 when unresolved
// (the column then reads as null on every row).
func findCol(headers []string, candidates []string) int {
	norm := make([]string, len(headers))
	for i, h := range headers {
		norm[i] = normHeader(h)
	}
	for _, c := range candidates {
		k := normHeader(c)
		for i, nh := range norm {
			if nh == k {
				return i
			}
		}
	}
	for _, c := range candidates {
		k := normHeader(c)
		if k == "" {
			continue
		}
		for i, nh := range norm {
			if strings.Contains(nh, k) {
				return i
			}
		}
	}
	return -1
}

func normHeader(s string) string {
	s = strings.ReplaceAll(s, "\uFEFF", "")
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.ReplaceAll(s, "\r", " ")
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "")
}

func parseDT(s string) (time.Time, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dtLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// parseFloat is deliberately lenient: quotes stripped, comma decimals
// accepted. Anything non-numeric is null, never zero.
func parseFloat(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	switch strings.ToLower(s) {
	case "nan", "none":
		return nil
	}
	s = strings.TrimSpace(strings.ReplaceAll(s, `"`, ""))
	s = strings.ReplaceAll(s, ",", ".")
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
