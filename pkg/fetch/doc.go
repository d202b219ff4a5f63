// Package fetch runs the attempt loop for a single endpoint.
//
// A Task issues GET requests through a Getter until one of them yields a
// reply or the attempt budget is spent. Any reply is terminal, whatever its
// status code: the Task does not judge success, it only records the outcome.
// Only transport failures are retried, with exponential backoff between
// attempts:
//
//	attempt 0: no delay
//	attempt 1: 1 unit
//	attempt 2: 2 units
//	attempt 3: 4 units
//
// Example usage:
//
//	task := fetch.NewTask(transportClient, fetch.DefaultConfig())
//	resp := task.Run(ctx, "https://api.example.com", "/v1/status", 3)
package fetch
