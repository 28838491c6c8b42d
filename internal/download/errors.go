package download

import "fmt"

// NetworkError reports a failed connection or a non-success HTTP status.
// Retryable: all downloads here are resumable, so re-invoking the same
// operation continues where it left off.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("download of %s failed: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// PartialTransferError reports a stream interrupted mid-download. The
// on-disk partial state is preserved and a retry resumes from it.
type PartialTransferError struct {
	Downloaded uint64
	Total      uint64
	Err        error
}

func (e *PartialTransferError) Error() string {
	return fmt.Sprintf("download interrupted at %.1fGB of %.1fGB; will resume on next attempt: %v",
		float64(e.Downloaded)/1e9, float64(e.Total)/1e9, e.Err)
}

func (e *PartialTransferError) Unwrap() error { return e.Err }
