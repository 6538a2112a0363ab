// Package monitor implements the background health monitor core: a
// fixed-interval poller that observes the tracked-service set, diffs each
// cycle's status table against the previous one, and emits discrete change
// events.
//
// The package talks to the OS and to persistence only through the small
// capability interfaces in types.go, so the diffing and failure-policy logic
// is testable with fakes.
package monitor
