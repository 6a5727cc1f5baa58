package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/karaqr/realtime/internal/reactions"
)

// channel is one topic membership on the shared socket. It implements
// reactions.Channel.
type channel struct {
	client *Client
	topic  string
	opts   reactions.ChannelConfig

	mu       sync.Mutex
	joinRef  string
	handlers map[string]func(reactions.Envelope)
	statusFn func(reactions.Status)
	closed   bool
}

// OnMessage registers a handler for a broadcast event on this topic. The
// last registration for an event wins.
func (ch *channel) OnMessage(event string, fn func(reactions.Envelope)) {
	ch.mu.Lock()
	ch.handlers[event] = fn
	ch.mu.Unlock()
}

// Subscribe records the status callback and sends the join asynchronously.
// The outcome arrives through the callback, never through the return value.
func (ch *channel) Subscribe(fn func(reactions.Status)) error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return ErrChannelClosed
	}
	ch.statusFn = fn
	ch.mu.Unlock()

	go ch.join()
	return nil
}

func (ch *channel) join() {
	ref := ch.client.nextRef()

	ch.mu.Lock()
	ch.joinRef = ref
	ch.mu.Unlock()

	payload, err := json.Marshal(joinPayload{
		Config: joinConfig{
			Broadcast: broadcastOptions{
				Self: ch.opts.EchoSelf,
				Ack:  ch.opts.RequireAck,
			},
		},
	})
	if err != nil {
		ch.notify(reactions.StatusChannelError)
		return
	}

	waiter := ch.client.registerReply(ref)
	if err := ch.client.writeFrame(frame{
		JoinRef: ref,
		Ref:     ref,
		Topic:   ch.topic,
		Event:   evJoin,
		Payload: payload,
	}); err != nil {
		ch.client.dropReply(ref)
		ch.notify(reactions.StatusChannelError)
		return
	}

	timer := time.NewTimer(ch.client.cfg.JoinTimeout)
	defer timer.Stop()

	select {
	case reply, ok := <-waiter:
		if !ok {
			// Socket died before the relay answered.
			ch.notify(reactions.StatusClosed)
			return
		}
		if reply.Status == "ok" {
			ch.notify(reactions.StatusSubscribed)
		} else {
			ch.client.logger.Warn("join rejected",
				"topic", ch.topic,
				"status", reply.Status)
			ch.notify(reactions.StatusChannelError)
		}
	case <-timer.C:
		ch.client.dropReply(ref)
		ch.notify(reactions.StatusTimedOut)
	}
}

// Send broadcasts an event payload on the topic. When the channel was
// opened with RequireAck, it blocks until the relay acknowledges or the
// context/deadline expires.
func (ch *channel) Send(ctx context.Context, event string, payload interface{}) error {
	ch.mu.Lock()
	closed := ch.closed
	joinRef := ch.joinRef
	ch.mu.Unlock()

	if closed {
		return ErrChannelClosed
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	env, err := json.Marshal(broadcastEnvelope{
		Type:    "broadcast",
		Event:   event,
		Payload: raw,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ref := ch.client.nextRef()
	f := frame{
		JoinRef: joinRef,
		Ref:     ref,
		Topic:   ch.topic,
		Event:   evBroadcast,
		Payload: env,
	}

	if !ch.opts.RequireAck {
		return ch.client.writeFrame(f)
	}

	waiter := ch.client.registerReply(ref)
	if err := ch.client.writeFrame(f); err != nil {
		ch.client.dropReply(ref)
		return err
	}

	timer := time.NewTimer(ch.client.cfg.WriteTimeout)
	defer timer.Stop()

	select {
	case reply, ok := <-waiter:
		if !ok {
			return ErrNotConnected
		}
		if reply.Status != "ok" {
			return fmt.Errorf("broadcast rejected: %s", reply.Status)
		}
		return nil
	case <-timer.C:
		ch.client.dropReply(ref)
		return ErrAckTimeout
	case <-ctx.Done():
		ch.client.dropReply(ref)
		return ctx.Err()
	}
}

// Close leaves the topic and emits a final CLOSED status. It is idempotent
// and tolerates an already dead socket.
func (ch *channel) Close() error {
	ch.mu.Lock()
	if ch.closed {
		ch.mu.Unlock()
		return nil
	}
	ch.closed = true
	joinRef := ch.joinRef
	ch.mu.Unlock()

	ch.client.detach(ch)

	err := ch.client.writeFrame(frame{
		JoinRef: joinRef,
		Ref:     ch.client.nextRef(),
		Topic:   ch.topic,
		Event:   evLeave,
		Payload: json.RawMessage(`{}`),
	})

	ch.notify(reactions.StatusClosed)

	if err != nil && !errors.Is(err, ErrNotConnected) {
		return err
	}
	return nil
}

// dispatchBroadcast unwraps a broadcast frame and invokes the handler
// registered for its inner event, if any.
func (ch *channel) dispatchBroadcast(payload json.RawMessage) {
	var env broadcastEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		ch.client.logger.Warn("dropping unparseable broadcast",
			"topic", ch.topic,
			"error", err)
		return
	}

	ch.mu.Lock()
	fn := ch.handlers[env.Event]
	ch.mu.Unlock()

	if fn != nil {
		fn(reactions.Envelope{Event: env.Event, Payload: env.Payload})
	}
}

func (ch *channel) notify(status reactions.Status) {
	ch.mu.Lock()
	fn := ch.statusFn
	ch.mu.Unlock()

	if fn != nil {
		fn(status)
	}
}
