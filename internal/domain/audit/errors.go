package audit

import "fmt"

// InvalidDataError rejects an audit request before anything is written.
type InvalidDataError struct {
	Field  string
	Reason string
}

func (e *InvalidDataError) Error() string {
	return fmt.Sprintf("invalid audit data: %s %s", e.Field, e.Reason)
}

// BatchSizeError rejects an empty or oversized batch.
type BatchSizeError struct {
	Size int
}

func (e *BatchSizeError) Error() string {
	if e.Size == 0 {
		return "audit batch is empty"
	}
	return fmt.Sprintf("audit batch of %d exceeds maximum of %d", e.Size, MaxBatchSize)
}
