package schedule

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/lib/logger/sl"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/model"
)

const (
	roleOperator = "operator produksi"
	roleAnalyst  = "analis laboratorium"

	siteOperator = "WTP3"
	siteAnalyst  = "LAB"
)

// Matcher loads the roster file and answers who is on duty for a date. The
// file is re-parsed only when its modification time changes; a failed reload
// keeps the previous roster and records the error.
type Matcher struct {
	log      *slog.Logger
	path     string
	interval time.Duration

	mu       sync.RWMutex
	rows     []model.RosterEntry
	loadedAt string
	lastErr  *string
	mtime    time.Time
}

func NewMatcher(log *slog.Logger, path string, interval time.Duration) *Matcher {
	return &Matcher{
		log:      log,
		path:     path,
		interval: interval,
		loadedAt: "-",
	}
}

// Run forces an initial load, then checks the file on every tick.
func (m *Matcher) Run(ctx context.Context) {
	m.load(true)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.log.Info("schedule matcher stopped")
			return
		case <-ticker.C:
			m.load(false)
		}
	}
}

func (m *Matcher) load(force bool) {
	if err := m.reload(force); err != nil {
		msg := err.Error()
		m.mu.Lock()
		m.lastErr = &msg
		m.loadedAt = time.Now().Format("2006-01-02 15:04:05")
		m.mu.Unlock()
		m.log.Error("failed to load roster", slog.String("path", m.path), sl.Err(err))
	}
}

func (m *Matcher) reload(force bool) error {
	info, err := os.Stat(m.path)
	if err != nil {
		return fmt.Errorf("failed to stat roster file: %w", err)
	}

	m.mu.RLock()
	unchanged := !force && !m.mtime.IsZero() && info.ModTime().Equal(m.mtime)
	m.mu.RUnlock()
	if unchanged {
		return nil
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("failed to read roster file: %w", err)
	}

	var rows []model.RosterEntry
	if err := json.Unmarshal(data, &rows); err != nil {
		return fmt.Errorf("failed to parse roster file: %w", err)
	}

	m.mu.Lock()
	m.rows = rows
	m.loadedAt = time.Now().Format("2006-01-02 15:04:05")
	m.lastErr = nil
	m.mtime = info.ModTime()
	m.mu.Unlock()

	m.log.Info("roster loaded",
		slog.String("path", m.path),
		slog.Int("entries", len(rows)),
	)
	return nil
}

// ForDate returns the on-duty operators and lab analysts for a calendar
// date (YYYY-MM-DD), both sorted by name.
func (m *Matcher) ForDate(date string) ([]model.Assignment, []model.Assignment) {
	m.mu.RLock()
	rows := m.rows
	m.mu.RUnlock()

	operators := make([]model.Assignment, 0)
	analysts := make([]model.Assignment, 0)

	for _, r := range rows {
		if msToDate(r.Date) != date {
			continue
		}

		// No shift bounds means an off-duty assignment.
		if !present(r.ShiftStart) || !present(r.ShiftEnd) {
			continue
		}

		name := strings.TrimSpace(r.Name)
		role := strings.ToLower(strings.TrimSpace(r.Role))
		code := strings.ToUpper(strings.TrimSpace(r.ShiftCode))
		hours := strings.TrimSpace(r.WorkHours)
		site := strings.ToUpper(strings.TrimSpace(r.Location))

		switch role {
		case roleOperator:
			if site != siteOperator {
				continue
			}
			// Only the 12-hour shift codes (M12, P12, S12, ...) count
			// as production duty here. Narrow on purpose.
			if !strings.Contains(code, "12") {
				continue
			}
			operators = append(operators, model.Assignment{
				Name:     name,
				Code:     orDash(code),
				Hours:    orDash(hours),
				Location: siteOperator,
			})

		case roleAnalyst:
			if site != siteAnalyst {
				continue
			}
			analysts = append(analysts, model.Assignment{
				Name:     name,
				Code:     orDash(code),
				Hours:    orDash(hours),
				Location: siteAnalyst,
			})
		}
	}

	sort.Slice(operators, func(i, j int) bool { return operators[i].Name < operators[j].Name })
	sort.Slice(analysts, func(i, j int) bool { return analysts[i].Name < analysts[j].Name })

	return operators, analysts
}

// Meta reports the last load for observability.
func (m *Matcher) Meta() model.RosterMeta {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return model.RosterMeta{
		LoadedAt: m.loadedAt,
		Error:    m.lastErr,
		Source:   m.path,
	}
}

// msToDate converts an epoch-millisecond midnight (UTC) to its calendar
// date string.
func msToDate(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02")
}

func present(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
