package telemetry

import (
	"errors"
	"testing"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/model"
)

func TestNormalizeDirectMessage(t *testing.T) {
	prev := model.DefaultSnapshot()

	data, matched, err := Normalize([]byte(`{"TOTAL_FLOW_ITK": 120.5, "TOTAL_FLOW_DST": 100.0}`), prev)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if matched != 2 {
		t.Fatalf("expected 2 matched keys, got %d", matched)
	}
	if data["TOTAL_FLOW_ITK"] != 120.5 {
		t.Fatalf("expected TOTAL_FLOW_ITK 120.5, got %v", data["TOTAL_FLOW_ITK"])
	}
	if data["SELISIH_FLOW"] != 20.5 {
		t.Fatalf("expected derived SELISIH_FLOW 20.5, got %v", data["SELISIH_FLOW"])
	}
}

func TestNormalizeAllKeysAlwaysPresent(t *testing.T) {
	prev := model.DefaultSnapshot()
	prev["FLOW_WTP3"] = 3.3

	data, _, err := Normalize([]byte(`{"PRESSURE_DST": 1.5}`), prev)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}

	for _, k := range model.NumericKeys {
		if _, ok := data[k]; !ok {
			t.Fatalf("raw key %s missing from snapshot", k)
		}
	}
	for _, k := range model.DerivedKeys {
		if _, ok := data[k]; !ok {
			t.Fatalf("derived key %s missing from snapshot", k)
		}
	}
	if data["FLOW_WTP3"] != 3.3 {
		t.Fatalf("expected previous value 3.3 retained, got %v", data["FLOW_WTP3"])
	}
}

func TestNormalizeEnvelopeShapes(t *testing.T) {
	prev := model.DefaultSnapshot()

	cases := []struct {
		name string
		raw  string
	}{
		{"data object", `{"data": {"FLOW_WTP3": 5.0}}`},
		{"payload object", `{"payload": {"FLOW_WTP3": 5.0}}`},
		{"payload string", `{"payload": "{\"FLOW_WTP3\": 5.0}"}`},
	}

	for _, tc := range cases {
		data, matched, err := Normalize([]byte(tc.raw), prev)
		if err != nil {
			t.Fatalf("%s: normalize: %v", tc.name, err)
		}
		if matched != 1 {
			t.Fatalf("%s: expected 1 matched, got %d", tc.name, matched)
		}
		if data["FLOW_WTP3"] != 5.0 {
			t.Fatalf("%s: expected FLOW_WTP3 5.0, got %v", tc.name, data["FLOW_WTP3"])
		}
	}
}

func TestNormalizeCaseInsensitiveKeys(t *testing.T) {
	data, matched, err := Normalize([]byte(`{"flow_wtp3": 7.5}`), model.DefaultSnapshot())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if matched != 1 || data["FLOW_WTP3"] != 7.5 {
		t.Fatalf("expected lower-case key matched, got matched=%d value=%v", matched, data["FLOW_WTP3"])
	}
}

func TestNormalizeCommaDecimalString(t *testing.T) {
	data, _, err := Normalize([]byte(`{"PRESSURE_DST": "2,75"}`), model.DefaultSnapshot())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if data["PRESSURE_DST"] != 2.75 {
		t.Fatalf("expected comma decimal parsed to 2.75, got %v", data["PRESSURE_DST"])
	}
}

func TestNormalizeUnparsableValueFallsBack(t *testing.T) {
	prev := model.DefaultSnapshot()
	prev["PRESSURE_DST"] = 1.1

	data, matched, err := Normalize([]byte(`{"PRESSURE_DST": "abc", "FLOW_WTP3": 2.0}`), prev)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if matched != 1 {
		t.Fatalf("unparsable value must not count as matched, got %d", matched)
	}
	if data["PRESSURE_DST"] != 1.1 {
		t.Fatalf("expected fallback to previous 1.1, got %v", data["PRESSURE_DST"])
	}
}

func TestNormalizeNoMatchDiscardsMessage(t *testing.T) {
	_, _, err := Normalize([]byte(`{"heartbeat": true, "uptime": 12345}`), model.DefaultSnapshot())
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestNormalizeDerivedKeyNeverFromMessage(t *testing.T) {
	data, _, err := Normalize([]byte(`{"TOTAL_FLOW_ITK": 10, "TOTAL_FLOW_DST": 4, "SELISIH_FLOW": 999}`), model.DefaultSnapshot())
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if data["SELISIH_FLOW"] != 6 {
		t.Fatalf("derived key must be recomputed, got %v", data["SELISIH_FLOW"])
	}
}

func TestNormalizeMalformedJSON(t *testing.T) {
	if _, _, err := Normalize([]byte(`{not json`), model.DefaultSnapshot()); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestNormalizeNonObjectJSON(t *testing.T) {
	if _, _, err := Normalize([]byte(`[1, 2, 3]`), model.DefaultSnapshot()); !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch for non-object payload, got %v", err)
	}
}
