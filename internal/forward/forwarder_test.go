package forward

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/model"
)

func TestNotifyRateGate(t *testing.T) {
	hits := make(chan model.Snapshot, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var snap model.Snapshot
		if err := json.Unmarshal(body, &snap); err != nil {
			t.Errorf("bad webhook body: %v", err)
		}
		hits <- snap
	}))
	defer srv.Close()

	f := New(slog.Default(), srv.URL, time.Hour, 5*time.Second)

	snap := model.DefaultSnapshot()
	snap["TOTAL_FLOW_DST"] = 12.5
	f.Notify(snap)

	select {
	case got := <-hits:
		if got["TOTAL_FLOW_DST"] != 12.5 {
			t.Fatalf("forwarded snapshot mismatch: %v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first notify must reach the webhook")
	}

	// inside the interval: gated before any network activity
	f.Notify(snap)
	f.Notify(snap)
	select {
	case <-hits:
		t.Fatal("rate gate must suppress deliveries inside the interval")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestNotifyReopensAfterInterval(t *testing.T) {
	hits := make(chan struct{}, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits <- struct{}{}
	}))
	defer srv.Close()

	f := New(slog.Default(), srv.URL, 50*time.Millisecond, 5*time.Second)

	f.Notify(model.DefaultSnapshot())
	<-hits

	time.Sleep(80 * time.Millisecond)
	f.Notify(model.DefaultSnapshot())

	select {
	case <-hits:
	case <-time.After(2 * time.Second):
		t.Fatal("gate must reopen once the interval elapses")
	}
}

func TestNotifyDisabledWithoutURL(t *testing.T) {
	f := New(slog.Default(), "", time.Hour, time.Second)
	f.Notify(model.DefaultSnapshot()) // must be a no-op, not a panic
}

func TestNotifySnapshotIsolation(t *testing.T) {
	done := make(chan model.Snapshot, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// hold the request long enough for the caller to mutate its copy
		time.Sleep(50 * time.Millisecond)
		body, _ := io.ReadAll(r.Body)
		var snap model.Snapshot
		_ = json.Unmarshal(body, &snap)
		done <- snap
	}))
	defer srv.Close()

	f := New(slog.Default(), srv.URL, time.Hour, 5*time.Second)

	snap := model.DefaultSnapshot()
	snap["PRESSURE_DST"] = 3.5
	f.Notify(snap)
	snap["PRESSURE_DST"] = 999

	select {
	case got := <-done:
		if got["PRESSURE_DST"] != 3.5 {
			t.Fatalf("forwarder must ship a copy, got %v", got["PRESSURE_DST"])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("webhook never hit")
	}
}
