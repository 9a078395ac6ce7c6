package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/dispatch"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/lib/logger/sl"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/model"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/store"
)

const streamTick = 2 * time.Second

// Dispatcher is the live-state source for pulls and the streaming loop.
type Dispatcher interface {
	Telemetry() dispatch.QtyUpdate
	QC() model.QCSummary
	Subscribe() *dispatch.Stream
}

// QCQuerier serves in-memory feed queries.
type QCQuerier interface {
	History(param string, hours float64, interval int) []model.Point
	LastN(param string, n int) []model.Point
}

// Scheduler answers duty queries.
type Scheduler interface {
	ForDate(date string) ([]model.Assignment, []model.Assignment)
	Meta() model.RosterMeta
}

type Server struct {
	log        *slog.Logger
	address    string
	server     *http.Server
	store      store.Store
	dispatcher Dispatcher
	qc         QCQuerier
	schedule   Scheduler
}

func NewServer(log *slog.Logger, address string, st store.Store, d Dispatcher, qc QCQuerier, sched Scheduler) *Server {
	return &Server{
		log:        log,
		address:    address,
		store:      st,
		dispatcher: d,
		qc:         qc,
		schedule:   sched,
	}
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(noCache)

	r.Get("/api/latest", s.handleLatest)
	r.Get("/api/history/{key}", s.handleHistory)
	r.Get("/api/qc/latest", s.handleQCLatest)
	r.Get("/api/qc/history/{param}", s.handleQCHistory)
	r.Get("/api/qc/last/{param}", s.handleQCLast)
	r.Get("/api/schedule", s.handleSchedule)
	r.Get("/api/meta", s.handleMeta)
	r.Get("/events", s.handleEvents)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleOK)
	r.Get("/live", s.handleOK)

	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.address,
		Handler:     s.routes(),
		ReadTimeout: 5 * time.Second,
		// No WriteTimeout: /events streams for the life of the client.
	}

	s.log.Info("starting http server", slog.String("address", s.address))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("http server error", sl.Err(err))
		}
	}()

	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func noCache(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.Telemetry())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	hours := queryFloat(r, "hours", 24)
	interval := queryInt(r, "interval", 60)
	limit := queryInt(r, "limit", 0)

	since := time.Duration(hours * float64(time.Hour))
	bucket := time.Duration(interval) * time.Second

	points, err := s.store.History(r.Context(), key, since, bucket, limit)
	if err != nil {
		s.log.Error("history query failed", slog.String("key", key), sl.Err(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "history query failed"})
		return
	}
	if points == nil {
		points = []model.Point{}
	}
	writeJSON(w, http.StatusOK, points)
}

func (s *Server) handleQCLatest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.dispatcher.QC())
}

func (s *Server) handleQCHistory(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "param")
	hours := queryFloat(r, "hours", 24)
	interval := queryInt(r, "interval", 3600)
	writeJSON(w, http.StatusOK, s.qc.History(param, hours, interval))
}

func (s *Server) handleQCLast(w http.ResponseWriter, r *http.Request) {
	param := chi.URLParam(r, "param")
	n := queryInt(r, "n", 5)
	writeJSON(w, http.StatusOK, s.qc.LastN(param, n))
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	operators, analysts := s.schedule.ForDate(date)

	writeJSON(w, http.StatusOK, map[string]any{
		"date":     date,
		"operator": operators,
		"lab":      analysts,
		"meta":     s.schedule.Meta(),
	})
}

func (s *Server) handleMeta(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"numeric_keys":  model.NumericKeys,
		"derived_keys":  model.DerivedKeys,
		"display_order": model.DisplayOrder,
		"titles":        model.TitleMap,
		"units":         model.UnitMap,
		"qc_order":      model.QCOrder,
	})
}

// handleEvents streams push updates. The channel is advisory: a part is
// emitted only when its signature changed, and clients are expected to fall
// back to the pull endpoints on disconnect.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	subID := uuid.New().String()[:8]
	s.log.Debug("stream subscriber connected", slog.String("sub", subID))

	stream := s.dispatcher.Subscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(streamTick)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			s.log.Debug("stream subscriber disconnected", slog.String("sub", subID))
			return
		case <-ticker.C:
			qty, qc := stream.Tick()
			if qty == nil && qc == nil {
				continue
			}

			msg := make(map[string]any, 2)
			if qty != nil {
				msg["qty"] = qty
			}
			if qc != nil {
				msg["qc"] = qc
			}

			data, err := json.Marshal(msg)
			if err != nil {
				s.log.Error("failed to marshal stream message", sl.Err(err))
				continue
			}

			if _, err := w.Write(append(append([]byte("data: "), data...), '\n', '\n')); err != nil {
				s.log.Debug("stream write failed", slog.String("sub", subID), sl.Err(err))
				return
			}
			flusher.Flush()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	count, err := s.store.Count(ctx)
	status := http.StatusOK
	body := map[string]any{
		"status":       "healthy",
		"measurements": count,
		"timestamp":    time.Now().UTC(),
	}
	if err != nil {
		status = http.StatusServiceUnavailable
		body["status"] = "unhealthy"
		body["error"] = err.Error()
	}
	writeJSON(w, status, body)
}

func (s *Server) handleOK(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func queryFloat(r *http.Request, name string, def float64) float64 {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			return v
		}
	}
	return def
}

func queryInt(r *http.Request, name string, def int) int {
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return def
}
