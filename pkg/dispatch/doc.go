// Package dispatch fans a list of endpoints out to fetch tasks under a
// concurrency limiter and collects their terminal responses.
//
// Every endpoint gets its own goroutine. A goroutine holds a limiter slot
// for the whole of its task, retries and backoff included, so at most
// MaxConcurrent tasks are active at any instant. The resulting batch keeps
// the input order of the endpoints.
//
// Example usage:
//
//	d, err := dispatch.New(dispatch.DefaultConfig("https://api.example.com"), task)
//	batch, err := d.DispatchAll(ctx, []string{"/v1/users", "/v1/orders"}, 3)
//	for _, r := range batch.Failed() {
//		log.Warn().Str("url", r.URL).Int("status", r.Status).Msg(r.Error)
//	}
package dispatch
