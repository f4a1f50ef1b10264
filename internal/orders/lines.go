package orders

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// DecodeQuantityLines reads quantity updates entry by entry. Entries whose id
// or quantity is not a JSON integer are dropped and the rest still apply.
func DecodeQuantityLines(entries []json.RawMessage) []QuantityInput {
	lines := make([]QuantityInput, 0, len(entries))
	for _, entry := range entries {
		fields, ok := objectFields(entry)
		if !ok {
			continue
		}
		id, ok := integerField(fields, "id", false)
		if !ok || id < 1 {
			continue
		}
		qty, ok := integerField(fields, "quantity", false)
		if !ok {
			continue
		}
		lines = append(lines, QuantityInput{ID: uint64(id), Quantity: float64(qty)})
	}
	return lines
}

// DecodeItemLines reads requested basket lines entry by entry. An unreadable
// entry keeps its position with Malformed set, so AddItems can report it by
// index. Digit strings are accepted the way form clients send them.
func DecodeItemLines(entries []json.RawMessage) []ItemInput {
	lines := make([]ItemInput, len(entries))
	for i, entry := range entries {
		fields, ok := objectFields(entry)
		if !ok {
			lines[i].Malformed = "line must be an object"
			continue
		}
		id, ok := integerField(fields, "product_info", true)
		if !ok || id < 0 {
			lines[i].Malformed = "product_info must be an integer id"
			continue
		}
		lines[i].ProductInfoID = uint64(id)
		qty, ok := integerField(fields, "quantity", true)
		if !ok || qty > math.MaxInt32 {
			lines[i].Malformed = "quantity must be an integer"
			continue
		}
		lines[i].Quantity = int(qty)
	}
	return lines
}

func objectFields(entry json.RawMessage) (map[string]json.RawMessage, bool) {
	if !bytes.HasPrefix(bytes.TrimSpace(entry), []byte("{")) {
		return nil, false
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(entry, &fields); err != nil {
		return nil, false
	}
	return fields, true
}

// integerField reports the integer held by fields[key]. A missing key reads
// as zero. Fractions, exponents and booleans never match; strings only when
// allowString is set and they hold plain digits.
func integerField(fields map[string]json.RawMessage, key string, allowString bool) (int64, bool) {
	raw, ok := fields[key]
	if !ok {
		return 0, true
	}
	token := string(bytes.TrimSpace(raw))
	if strings.HasPrefix(token, `"`) {
		if !allowString {
			return 0, false
		}
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		token = strings.TrimSpace(s)
	}
	n, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
