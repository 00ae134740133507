package mux

import "encoding/json"

// emptyParams is the canonical form of an absent parameter set.
var emptyParams = json.RawMessage("{}")

// deriveKey builds the deterministic subscription key for a message type and
// parameter set. Parameters are serialized to a canonical stable string
// (encoding/json sorts map keys), so two logically identical subscriptions
// collapse to the same key regardless of construction order.
func deriveKey(messageType string, params map[string]any) (string, json.RawMessage, error) {
	canonical := emptyParams
	if len(params) > 0 {
		b, err := json.Marshal(params)
		if err != nil {
			return messageType + "|" + string(emptyParams), emptyParams, err
		}
		canonical = b
	}
	return messageType + "|" + string(canonical), canonical, nil
}
