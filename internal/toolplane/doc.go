// Package toolplane implements the tool-execution control plane: every
// dispatch to a local or MCP-backed tool passes through a layered pipeline
// of recovery policy, retry, timeout, and a per-tool concurrency slot before
// the tool's own Execute runs. A metrics collector records the outcome of
// every attempt for rolling-window aggregation.
//
// The layering, outer to inner, is recovery -> retry -> slot -> timeout ->
// execute. The slot is acquired before the attempt's timeout starts: time
// spent waiting for a slot is
// tracked against its own acquire budget rather than the attempt's retry or
// timeout budget, so a busy tool doesn't eat into the caller's retry count.
package toolplane
