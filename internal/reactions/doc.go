// Package reactions implements the realtime reactions client: a connection
// lifecycle manager for a tenant-scoped broadcast channel.
//
// The package is built from four pieces:
//   - Manager: owns the connect/disconnect lifecycle of exactly one channel,
//     interprets subscription statuses, and schedules reconnections
//   - Policy: pure backoff/jitter/attempt-budget computation
//   - Gate: minimum spacing between connection attempts
//   - Aggregator: classifies inbound messages into counters and a bounded feed
//
// The channel transport is abstracted behind the Provider interface so the
// lifecycle logic can be tested without a live socket.
package reactions
