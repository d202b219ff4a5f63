package result

import "time"

// Batch is the ordered result of one dispatch. Responses[i] belongs to the
// i-th requested endpoint regardless of completion order.
type Batch struct {
	ID        string        `json:"id"`
	Responses []Response    `json:"responses"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Len returns the number of responses in the batch.
func (b Batch) Len() int {
	return len(b.Responses)
}

// Successful returns the successful responses of the batch.
func (b Batch) Successful() []Response {
	return Successful(b.Responses)
}

// Failed returns the failed responses of the batch.
func (b Batch) Failed() []Response {
	return Failed(b.Responses)
}

// Summary counts successful and failed responses.
func (b Batch) Summary() (succeeded, failed int) {
	for _, r := range b.Responses {
		if r.IsSuccessful() {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}
