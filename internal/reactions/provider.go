package reactions

import "context"

// ChannelConfig is peer configuration passed through to the provider.
//
// EchoSelf asks the relay to deliver a client's own broadcasts back to it,
// which lets a sender see its reaction confirmed on the shared display.
// RequireAck asks the relay to acknowledge each publish. Both add relay
// round-trips; high-volume displays may disable them to reduce overhead at
// the cost of weaker delivery feedback.
type ChannelConfig struct {
	EchoSelf   bool
	RequireAck bool
}

// Provider opens ephemeral broadcast channels by topic.
type Provider interface {
	OpenChannel(ctx context.Context, topic string, cfg ChannelConfig) (Channel, error)
}

// Channel is one handle on a named broadcast topic.
//
// OnMessage registrations must be in place before Subscribe is called.
// The status callback is invoked from the provider's own goroutine; it must
// not block.
type Channel interface {
	OnMessage(event string, fn func(Envelope))
	Subscribe(fn func(Status)) error
	Send(ctx context.Context, event string, payload interface{}) error
	Close() error
}
