package forward

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/lib/logger/sl"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/model"
)

// Forwarder posts the latest snapshot to an external webhook, at most once
// per interval, one attempt, errors discarded. It must never slow down or
// fail the ingestion path.
type Forwarder struct {
	log      *slog.Logger
	url      string
	interval time.Duration
	client   *http.Client

	mu       sync.Mutex
	lastSent time.Time
}

func New(log *slog.Logger, url string, interval, timeout time.Duration) *Forwarder {
	return &Forwarder{
		log:      log,
		url:      url,
		interval: interval,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// Notify rate-gates on the caller's goroutine and ships the snapshot on its
// own; the caller never blocks on the network.
func (f *Forwarder) Notify(snapshot model.Snapshot) {
	if f.url == "" {
		return
	}

	f.mu.Lock()
	if time.Since(f.lastSent) < f.interval {
		f.mu.Unlock()
		return
	}
	f.lastSent = time.Now()
	f.mu.Unlock()

	go f.send(snapshot.Clone())
}

func (f *Forwarder) send(snapshot model.Snapshot) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		f.log.Debug("failed to marshal snapshot", sl.Err(err))
		return
	}

	resp, err := f.client.Post(f.url, "application/json", bytes.NewReader(data))
	if err != nil {
		f.log.Debug("webhook post failed", sl.Err(err))
		return
	}
	defer resp.Body.Close()

	f.log.Debug("snapshot forwarded", slog.Int("status", resp.StatusCode))
}
