package constants

// BatchStatus is the canonical lifecycle status for a remote batch job.
type BatchStatus string

// Stable values (these exact strings appear in metadata and the run index).
const (
	BatchStatusPending    BatchStatus = "pending"     // accepted, not started
	BatchStatusInProgress BatchStatus = "in_progress" // running remotely
	BatchStatusCompleted  BatchStatus = "completed"   // terminal success
	BatchStatusFailed     BatchStatus = "failed"      // terminal failure
	BatchStatusCancelled  BatchStatus = "cancelled"   // terminal, operator cancelled
	BatchStatusExpired    BatchStatus = "expired"     // terminal, completion window elapsed
	BatchStatusUnknown    BatchStatus = "unknown"     // lookup itself errored; retry next run
)

// IsTerminal reports whether the status can no longer change remotely.
// Unknown is non-terminal: it means we could not ask, not that the batch ended.
func (s BatchStatus) IsTerminal() bool {
	switch s {
	case BatchStatusCompleted, BatchStatusFailed, BatchStatusCancelled, BatchStatusExpired:
		return true
	}
	return false
}

// MapRemoteStatus normalizes the remote API's status vocabulary onto ours.
// The remote side has transitional states (validating, finalizing, cancelling)
// that we fold into the nearest local state.
func MapRemoteStatus(remote string) BatchStatus {
	switch remote {
	case "validating", "pending", "queued":
		return BatchStatusPending
	case "in_progress", "finalizing", "cancelling":
		return BatchStatusInProgress
	case "completed":
		return BatchStatusCompleted
	case "failed":
		return BatchStatusFailed
	case "cancelled":
		return BatchStatusCancelled
	case "expired":
		return BatchStatusExpired
	default:
		return BatchStatusUnknown
	}
}
