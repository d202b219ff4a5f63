package result

// Successful returns, in order, the responses with status 200 and data.
func Successful(responses []Response) []Response {
	out := make([]Response, 0, len(responses))
	for _, r := range responses {
		if r.IsSuccessful() {
			out = append(out, r)
		}
	}
	return out
}

// Failed returns, in order, the responses with an error or a non-200 status.
func Failed(responses []Response) []Response {
	out := make([]Response, 0, len(responses))
	for _, r := range responses {
		if r.IsFailed() {
			out = append(out, r)
		}
	}
	return out
}

// Partition splits responses into the Successful and Failed subsets in a
// single pass.
func Partition(responses []Response) (successful, failed []Response) {
	successful = make([]Response, 0, len(responses))
	failed = make([]Response, 0, len(responses))
	for _, r := range responses {
		if r.IsSuccessful() {
			successful = append(successful, r)
		}
		if r.IsFailed() {
			failed = append(failed, r)
		}
	}
	return successful, failed
}
