// Package result defines the terminal outcome records produced by a dispatch
// and the queries that split a batch into successful and failed responses.
//
// A Response is built exactly once per endpoint, when its fetch task reaches
// a terminal state, and is never modified afterwards. A Batch keeps one
// Response per requested endpoint in the order the endpoints were given.
package result
