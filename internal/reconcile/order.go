package reconcile

import (
	"encoding/json"
	"regexp"
	"strconv"

	"github.com/structmine/docbatch/internal/tracking"
)

// OrderSentinel sorts every id without an explicit or parseable position
// after all positioned ids.
const OrderSentinel = int(^uint32(0) >> 1)

// trailingInt matches the positional suffix of ids like "doc-chunk-7" or
// "req-3": the digits after the final hyphen.
var trailingInt = regexp.MustCompile(`-(\d+)$`)

// TrailingInt parses the positional fallback from a custom id. Ids without
// a trailing integer return OrderSentinel and sort last.
func TrailingInt(customID string) int {
	m := trailingInt.FindStringSubmatch(customID)
	if m == nil {
		return OrderSentinel
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return OrderSentinel
	}
	return n
}

// orderMeta is the per-request metadata that may carry an explicit position.
type orderMeta struct {
	OrderIndex *int `json:"order_index"`
	Metadata   *struct {
		OrderIndex *int `json:"order_index"`
	} `json:"metadata"`
}

// BuildOrderMap scans request payloads for an explicit order_index field
// (top-level or under metadata) and returns custom_id -> index. The map is
// empty when no request carries one.
func BuildOrderMap(requests []tracking.RequestRecord) map[string]int {
	m := make(map[string]int)
	for _, req := range requests {
		if req.CustomID == "" || len(req.Body) == 0 {
			continue
		}
		var meta orderMeta
		if err := json.Unmarshal(req.Body, &meta); err != nil {
			continue
		}
		switch {
		case meta.OrderIndex != nil:
			m[req.CustomID] = *meta.OrderIndex
		case meta.Metadata != nil && meta.Metadata.OrderIndex != nil:
			m[req.CustomID] = *meta.Metadata.OrderIndex
		}
	}
	return m
}
