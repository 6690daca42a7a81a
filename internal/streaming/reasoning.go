package streaming

import "encoding/json"

// reasoningSynonymKeys is the priority order in which backend-specific
// chain-of-thought keys are recognized. The first one present wins.
var reasoningSynonymKeys = []string{"reasoning_content", "reasoning", "thought", "thinking"}

// ExtractReasoningSynonym scans a raw JSON object for the first present
// reasoning-synonym key and returns its string value. ok is false if none
// of the keys carries a non-empty string.
func ExtractReasoningSynonym(raw json.RawMessage) (value string, ok bool) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return "", false
	}
	for _, key := range reasoningSynonymKeys {
		field, present := obj[key]
		if !present {
			continue
		}
		var s string
		if err := json.Unmarshal(field, &s); err != nil || s == "" {
			continue
		}
		return s, true
	}
	return "", false
}
