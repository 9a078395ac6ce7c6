package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/model"
)

// QtyUpdate is the telemetry part of a push message and the pull shape of
// the latest endpoint.
type QtyUpdate struct {
	Ts   int64          `json:"ts"`
	Data model.Snapshot `json:"data"`
}

// Dispatcher holds the current telemetry and QC state. Pulls always
// succeed; before the first update they serve defaults. Push decisions are
// made per subscriber through a Stream.
type Dispatcher struct {
	mu   sync.RWMutex
	ts   int64
	data model.Snapshot
	qc   model.QCSummary
}

func New() *Dispatcher {
	return &Dispatcher{
		data: model.DefaultSnapshot(),
		qc: model.QCSummary{
			QCLastUpdate:    "-",
			ChlorLastUpdate: "-",
			Latest:          model.EmptyQCLatest(),
			Status:          model.QCStatus{LastSuccess: "-", Headers: []string{}},
		},
	}
}

// SetTelemetry replaces the telemetry snapshot wholesale.
func (d *Dispatcher) SetTelemetry(ts int64, snapshot model.Snapshot) {
	d.mu.Lock()
	d.ts = ts
	d.data = snapshot
	d.mu.Unlock()
}

// SetQC replaces the QC summary wholesale.
func (d *Dispatcher) SetQC(summary model.QCSummary) {
	d.mu.Lock()
	d.qc = summary
	d.mu.Unlock()
}

// Telemetry serves the current snapshot. Before the first message the
// timestamp falls back to now so clients always get a usable value.
func (d *Dispatcher) Telemetry() QtyUpdate {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ts := d.ts
	if ts == 0 {
		ts = time.Now().Unix()
	}
	return QtyUpdate{Ts: ts, Data: d.data.Clone()}
}

// QC serves the current QC summary with a fresh timestamp.
func (d *Dispatcher) QC() model.QCSummary {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := d.qc
	out.Ts = time.Now().Unix()
	latest := make(map[string]model.QCLatest, len(d.qc.Latest))
	for p, l := range d.qc.Latest {
		latest[p] = l
	}
	out.Latest = latest
	return out
}

// Stream is one subscriber's diffing cursor. Each streaming loop gets its
// own, so a slow or late subscriber never suppresses another's updates.
type Stream struct {
	d          *Dispatcher
	lastQtySig string
	lastQCSig  string
}

// Subscribe returns a fresh cursor; its first Tick emits everything.
func (d *Dispatcher) Subscribe() *Stream {
	return &Stream{d: d}
}

// Tick compares each part's signature against the last one pushed on this
// stream and returns only the parts that changed. The stored signatures
// advance only for emitted parts, so a quiet feed never starves the other.
func (s *Stream) Tick() (*QtyUpdate, *model.QCSummary) {
	// The signature uses the stored timestamp, not the now-fallback the
	// pull payload carries, so ticks with no new message stay silent.
	s.d.mu.RLock()
	storedTs := s.d.ts
	s.d.mu.RUnlock()

	qty := s.d.Telemetry()
	qc := s.d.QC()

	sigQty := qty
	sigQty.Ts = storedTs
	qtySig := telemetrySignature(sigQty)
	qcSig := qcSignature(qc)

	var qtyOut *QtyUpdate
	var qcOut *model.QCSummary

	if qtySig != s.lastQtySig {
		qtyOut = &qty
		s.lastQtySig = qtySig
	}
	if qcSig != s.lastQCSig {
		qcOut = &qc
		s.lastQCSig = qcSig
	}

	return qtyOut, qcOut
}

// telemetrySignature fingerprints the semantically significant fields, not
// the whole snapshot.
func telemetrySignature(q QtyUpdate) string {
	return fmt.Sprintf("%d|%g|%g|%g",
		q.Ts,
		q.Data["TOTAL_FLOW_DST"],
		q.Data["PRESSURE_DST"],
		q.Data["LVL_RES_WTP3"],
	)
}

func qcSignature(q model.QCSummary) string {
	return fmt.Sprintf("%s|%s|%s|%s",
		q.QCLastUpdate,
		q.ChlorLastUpdate,
		floatSig(q.Latest["kekeruhan"].Value),
		floatSig(q.Latest[model.ParamSisaChlor].Value),
	)
}

func floatSig(v *float64) string {
	if v == nil {
		return "nil"
	}
	return fmt.Sprintf("%g", *v)
}
