package submit

import (
	"encoding/json"
	"fmt"

	"github.com/structmine/docbatch/internal/tracking"
)

// Part is one physical batch payload: an ordered slice of requests plus
// their serialized NDJSON bytes, both limits already satisfied.
type Part struct {
	Requests []tracking.RequestRecord
	Payload  []byte
}

// Split partitions requests into parts such that each part holds at most
// maxCount requests and at most maxBytes of serialized payload, preserving
// input order with no request split across parts. A single request larger
// than maxBytes still goes out alone in its own part; the count limit holds
// unconditionally.
func Split(requests []tracking.RequestRecord, maxCount, maxBytes int) ([]Part, error) {
	if maxCount <= 0 || maxBytes <= 0 {
		return nil, fmt.Errorf("split limits must be positive (count=%d bytes=%d)", maxCount, maxBytes)
	}

	var parts []Part
	var cur Part
	flush := func() {
		if len(cur.Requests) > 0 {
			parts = append(parts, cur)
			cur = Part{}
		}
	}

	for _, req := range requests {
		line, err := json.Marshal(req)
		if err != nil {
			return nil, fmt.Errorf("marshal request %s: %w", req.CustomID, err)
		}
		line = append(line, '\n')

		if len(cur.Requests) >= maxCount || (len(cur.Payload) > 0 && len(cur.Payload)+len(line) > maxBytes) {
			flush()
		}
		cur.Requests = append(cur.Requests, req)
		cur.Payload = append(cur.Payload, line...)
	}
	flush()
	return parts, nil
}
