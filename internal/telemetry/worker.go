package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/lib/logger/sl"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/model"
	"github.com/redmozaic77-design/Dashboard-IOT/internal/store"
)

// Publisher receives the normalized snapshot for live serving.
type Publisher interface {
	SetTelemetry(ts int64, snapshot model.Snapshot)
}

// Notifier forwards snapshots outward, best effort.
type Notifier interface {
	Notify(snapshot model.Snapshot)
}

// Worker subscribes to the sensor feed and drives the normalize → persist →
// publish pipeline. It is the exclusive writer of the telemetry snapshot.
type Worker struct {
	log       *slog.Logger
	broker    string
	topic     string
	store     store.Store
	publisher Publisher
	notifier  Notifier
	client    mqtt.Client

	mu   sync.Mutex
	prev model.Snapshot
}

func NewWorker(log *slog.Logger, broker, topic string, st store.Store, publisher Publisher, notifier Notifier) *Worker {
	return &Worker{
		log:       log,
		broker:    broker,
		topic:     topic,
		store:     st,
		publisher: publisher,
		notifier:  notifier,
		prev:      model.DefaultSnapshot(),
	}
}

// Start connects to the broker and subscribes. Reconnects and resubscribes
// are handled by the client; Start fails only when the first connect does.
func (w *Worker) Start() error {
	opts := mqtt.NewClientOptions().
		AddBroker(w.broker).
		SetClientID("dashboard-" + uuid.New().String()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(w.onConnect).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			w.log.Warn("mqtt connection lost", sl.Err(err))
		})

	w.client = mqtt.NewClient(opts)

	token := w.client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return fmt.Errorf("failed to connect to broker %s: timeout", w.broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to connect to broker %s: %w", w.broker, err)
	}

	return nil
}

func (w *Worker) Stop() {
	if w.client != nil && w.client.IsConnected() {
		w.client.Disconnect(250)
	}
	w.log.Info("telemetry worker stopped")
}

func (w *Worker) onConnect(client mqtt.Client) {
	w.log.Info("connected to mqtt broker", slog.String("broker", w.broker))

	for _, t := range []string{w.topic, w.topic + "/#"} {
		if token := client.Subscribe(t, 0, w.handleMessage); token.Wait() && token.Error() != nil {
			w.log.Error("failed to subscribe",
				slog.String("topic", t),
				sl.Err(token.Error()),
			)
		}
	}
}

// handleMessage runs on the client's callback goroutine. Bad messages are
// dropped one at a time; nothing here may kill the subscription.
func (w *Worker) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	payload := msg.Payload()
	if len(payload) == 0 {
		return
	}

	w.mu.Lock()
	prev := w.prev.Clone()
	w.mu.Unlock()

	data, matched, err := Normalize(payload, prev)
	if err != nil {
		if errors.Is(err, ErrNoMatch) {
			w.log.Debug("message matched no metrics", slog.String("topic", msg.Topic()))
		} else {
			w.log.Debug("failed to normalize message",
				slog.String("topic", msg.Topic()),
				sl.Err(err),
			)
		}
		return
	}

	ts := time.Now().Unix()

	w.mu.Lock()
	w.prev = data
	w.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// A failed append degrades history but not the live view; the snapshot
	// is still published.
	if err := w.store.Append(ctx, ts, data); err != nil {
		w.log.Error("failed to append measurements", sl.Err(err))
	}

	w.publisher.SetTelemetry(ts, data)
	w.notifier.Notify(data)

	w.log.Debug("telemetry processed",
		slog.Int("matched", matched),
		slog.Int64("ts", ts),
	)
}
