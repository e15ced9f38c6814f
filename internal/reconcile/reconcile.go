package reconcile

import (
	"log/slog"
	"sort"

	"github.com/structmine/docbatch/internal/tracking"
)

// Merge concatenates log-resident responses with freshly retrieved ones,
// drops duplicates by custom_id (first seen wins, with a warning naming the
// dropped provenance), and orders the result: entries with a custom_id first, sorted
// by (orderMap index or sentinel, trailing integer), stable; entries
// without one appended last in arrival order. Running Merge twice over the
// same inputs yields the identical ordering.
func Merge(fromLog, retrieved []tracking.ResponseRecord, orderMap map[string]int, logger *slog.Logger) []tracking.ResponseRecord {
	if logger == nil {
		logger = slog.Default()
	}

	var sortable []tracking.ResponseRecord
	var unkeyed []tracking.ResponseRecord
	seen := make(map[string]string) // custom_id -> provenance of the kept entry

	add := func(recs []tracking.ResponseRecord, provenance string) {
		for _, rec := range recs {
			if rec.CustomID == "" {
				unkeyed = append(unkeyed, rec)
				continue
			}
			if prior, dup := seen[rec.CustomID]; dup {
				logger.Warn("reconcile.duplicate_dropped",
					"custom_id", rec.CustomID,
					"kept_from", prior,
					"dropped_from", provenance,
				)
				continue
			}
			seen[rec.CustomID] = provenance
			sortable = append(sortable, rec)
		}
	}
	add(fromLog, "tracking_log")
	add(retrieved, "batch_output")

	sort.SliceStable(sortable, func(i, j int) bool {
		ki := sortKey(sortable[i].CustomID, orderMap)
		kj := sortKey(sortable[j].CustomID, orderMap)
		if ki[0] != kj[0] {
			return ki[0] < kj[0]
		}
		return ki[1] < kj[1]
	})

	out := make([]tracking.ResponseRecord, 0, len(sortable)+len(unkeyed))
	out = append(out, sortable...)
	out = append(out, unkeyed...)

	if len(unkeyed) > 0 {
		logger.Warn("reconcile.unkeyed_responses", "count", len(unkeyed))
	}
	return out
}

func sortKey(customID string, orderMap map[string]int) [2]int {
	explicit := OrderSentinel
	if idx, ok := orderMap[customID]; ok {
		explicit = idx
	}
	return [2]int{explicit, TrailingInt(customID)}
}
