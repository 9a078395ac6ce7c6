package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redmozaic77-design/Dashboard-IOT/internal/model"
)

// ErrNoMatch marks a message that carried none of the known metric keys
// (heartbeats, foreign payloads). The caller must discard the whole message:
// no persist, no broadcast.
var ErrNoMatch = errors.New("no known metric key matched")

// Normalize parses one raw sensor message and reconciles it against the
// previous snapshot. Missing or unparsable raw keys retain the last-known
// value; that fallback is the policy, not an accident. The returned snapshot
// always has every raw and derived key populated.
func Normalize(raw []byte, prev model.Snapshot) (model.Snapshot, int, error) {
	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, 0, fmt.Errorf("failed to parse message: %w", err)
	}

	obj, ok := parsed.(map[string]any)
	if !ok {
		return nil, 0, ErrNoMatch
	}

	obj = unwrapEnvelope(obj)

	// Case-fold once so matching is insensitive to the sender's casing.
	folded := make(map[string]any, len(obj))
	for k, v := range obj {
		folded[strings.ToUpper(k)] = v
	}

	data := make(model.Snapshot, len(model.NumericKeys)+len(model.DerivedKeys))
	matched := 0

	for _, key := range model.NumericKeys {
		if v, exists := folded[key]; exists {
			if f, ok := toFloat(v); ok {
				data[key] = f
				matched++
				continue
			}
		}
		data[key] = prev[key]
	}

	if matched == 0 {
		return nil, 0, ErrNoMatch
	}

	// Derived keys are always recomputed, never taken from the message.
	data[model.KeySelisihFlow] = data["TOTAL_FLOW_ITK"] - data["TOTAL_FLOW_DST"]

	return data, matched, nil
}

// unwrapEnvelope descends one level into known envelope shapes: a nested
// "data" or "payload" object, or a "payload" string that itself parses as an
// object. Only one level is attempted.
func unwrapEnvelope(obj map[string]any) map[string]any {
	if inner, ok := obj["data"].(map[string]any); ok {
		return inner
	}
	if inner, ok := obj["payload"].(map[string]any); ok {
		return inner
	}
	if s, ok := obj["payload"].(string); ok {
		var inner map[string]any
		if err := json.Unmarshal([]byte(s), &inner); err == nil {
			return inner
		}
	}
	return obj
}

// toFloat accepts JSON numbers and numeric strings, including the
// decimal-comma variant.
func toFloat(v any) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(val), ",", ".")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
