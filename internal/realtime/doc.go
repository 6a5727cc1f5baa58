// Package realtime implements the channel provider consumed by the
// reactions client: named broadcast topics multiplexed over a single
// websocket connection to the hosted relay, with join/reply framing,
// heartbeats, and stale-connection detection.
package realtime
