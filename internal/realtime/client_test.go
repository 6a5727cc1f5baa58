package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/karaqr/realtime/internal/reactions"
)

// mockRelay is a websocket server speaking the channel frame protocol.
// joinStatus controls how joins are answered; broadcasts are echoed to the
// sender when echo is set.
type mockRelay struct {
	t          *testing.T
	server     *httptest.Server
	upgrader   websocket.Upgrader
	joinStatus string
	silentJoin bool
	echo       bool

	mu    sync.Mutex
	conns []*websocket.Conn
	joins []frame
	sends []frame
}

func newMockRelay(t *testing.T) *mockRelay {
	t.Helper()

	r := &mockRelay{t: t, joinStatus: "ok"}
	r.server = httptest.NewServer(http.HandlerFunc(r.handle))
	t.Cleanup(r.server.Close)
	return r
}

func (r *mockRelay) url() string {
	return "ws" + strings.TrimPrefix(r.server.URL, "http")
}

func (r *mockRelay) handle(w http.ResponseWriter, req *http.Request) {
	conn, err := r.upgrader.Upgrade(w, req, nil)
	if err != nil {
		return
	}

	r.mu.Lock()
	r.conns = append(r.conns, conn)
	r.mu.Unlock()

	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}

		switch f.Event {
		case evJoin:
			r.mu.Lock()
			r.joins = append(r.joins, f)
			silent := r.silentJoin
			status := r.joinStatus
			r.mu.Unlock()

			if silent {
				continue
			}
			r.reply(conn, f, status)

		case evHeartbeat:
			r.reply(conn, f, "ok")

		case evBroadcast:
			r.mu.Lock()
			r.sends = append(r.sends, f)
			echo := r.echo
			r.mu.Unlock()

			r.reply(conn, f, "ok")
			if echo {
				r.writeFrame(conn, frame{
					Topic:   f.Topic,
					Event:   evBroadcast,
					Payload: f.Payload,
				})
			}

		case evLeave:
			r.reply(conn, f, "ok")
		}
	}
}

func (r *mockRelay) reply(conn *websocket.Conn, req frame, status string) {
	payload, _ := json.Marshal(replyPayload{Status: status})
	r.writeFrame(conn, frame{
		JoinRef: req.JoinRef,
		Ref:     req.Ref,
		Topic:   req.Topic,
		Event:   evReply,
		Payload: payload,
	})
}

func (r *mockRelay) writeFrame(conn *websocket.Conn, f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		r.t.Errorf("marshal frame: %v", err)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	conn.WriteMessage(websocket.TextMessage, data)
}

// pushBroadcast delivers a server-initiated broadcast on every connection.
func (r *mockRelay) pushBroadcast(topic, event string, payload interface{}) {
	raw, _ := json.Marshal(payload)
	env, _ := json.Marshal(broadcastEnvelope{Type: "broadcast", Event: event, Payload: raw})

	r.mu.Lock()
	conns := append([]*websocket.Conn(nil), r.conns...)
	r.mu.Unlock()

	for _, conn := range conns {
		r.writeFrame(conn, frame{Topic: topic, Event: evBroadcast, Payload: env})
	}
}

func (r *mockRelay) dropConnections() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, conn := range r.conns {
		conn.Close()
	}
	r.conns = nil
}

func (r *mockRelay) joinCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.joins)
}

func (r *mockRelay) lastJoin() (frame, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.joins) == 0 {
		return frame{}, false
	}
	return r.joins[len(r.joins)-1], true
}

func testClientConfig(url string) ClientConfig {
	cfg := DefaultClientConfig()
	cfg.URL = url
	cfg.JoinTimeout = 500 * time.Millisecond
	cfg.HeartbeatInterval = 50 * time.Millisecond
	cfg.StaleTimeout = 2 * time.Second
	cfg.WriteTimeout = 500 * time.Millisecond
	return cfg
}

// waitStatus polls for a status to land on the collector.
func waitStatus(t *testing.T, got func() []reactions.Status, want reactions.Status) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, s := range got() {
			if s == want {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("status %q never arrived, got %v", want, got())
}

type statusCollector struct {
	mu       sync.Mutex
	statuses []reactions.Status
}

func (sc *statusCollector) record(s reactions.Status) {
	sc.mu.Lock()
	sc.statuses = append(sc.statuses, s)
	sc.mu.Unlock()
}

func (sc *statusCollector) all() []reactions.Status {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return append([]reactions.Status(nil), sc.statuses...)
}

func TestClientSubscribeOK(t *testing.T) {
	relay := newMockRelay(t)

	client := NewClient(testClientConfig(relay.url()), nil)
	defer client.Close()

	ch, err := client.OpenChannel(context.Background(), "reactions_T1", reactions.ChannelConfig{
		EchoSelf:   true,
		RequireAck: true,
	})
	if err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	var sc statusCollector
	if err := ch.Subscribe(sc.record); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	waitStatus(t, sc.all, reactions.StatusSubscribed)

	join, ok := relay.lastJoin()
	if !ok {
		t.Fatal("relay saw no join")
	}
	if join.Topic != "reactions_T1" {
		t.Errorf("join topic = %q, want reactions_T1", join.Topic)
	}

	var jp joinPayload
	if err := json.Unmarshal(join.Payload, &jp); err != nil {
		t.Fatalf("unmarshal join payload: %v", err)
	}
	if !jp.Config.Broadcast.Self || !jp.Config.Broadcast.Ack {
		t.Errorf("broadcast options = %+v, want self and ack", jp.Config.Broadcast)
	}
}

func TestClientSubscribeRejected(t *testing.T) {
	relay := newMockRelay(t)
	relay.joinStatus = "error"

	client := NewClient(testClientConfig(relay.url()), nil)
	defer client.Close()

	ch, err := client.OpenChannel(context.Background(), "reactions_T1", reactions.ChannelConfig{})
	if err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	var sc statusCollector
	ch.Subscribe(sc.record)

	waitStatus(t, sc.all, reactions.StatusChannelError)
}

func TestClientSubscribeTimeout(t *testing.T) {
	relay := newMockRelay(t)
	relay.silentJoin = true

	cfg := testClientConfig(relay.url())
	cfg.JoinTimeout = 50 * time.Millisecond

	client := NewClient(cfg, nil)
	defer client.Close()

	ch, err := client.OpenChannel(context.Background(), "reactions_T1", reactions.ChannelConfig{})
	if err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	var sc statusCollector
	ch.Subscribe(sc.record)

	waitStatus(t, sc.all, reactions.StatusTimedOut)
}

func TestClientBroadcastDelivery(t *testing.T) {
	relay := newMockRelay(t)

	client := NewClient(testClientConfig(relay.url()), nil)
	defer client.Close()

	ch, err := client.OpenChannel(context.Background(), "reactions_T1", reactions.ChannelConfig{})
	if err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	var (
		mu       sync.Mutex
		received []reactions.Envelope
	)
	ch.OnMessage("reaction", func(env reactions.Envelope) {
		mu.Lock()
		received = append(received, env)
		mu.Unlock()
	})

	var sc statusCollector
	ch.Subscribe(sc.record)
	waitStatus(t, sc.all, reactions.StatusSubscribed)

	relay.pushBroadcast("reactions_T1", "reaction", map[string]string{"type": "fire"})
	relay.pushBroadcast("reactions_other", "reaction", map[string]string{"type": "love"})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n >= 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("received %d envelopes, want 1 (own topic only)", len(received))
	}
	if received[0].Event != "reaction" {
		t.Errorf("event = %q, want reaction", received[0].Event)
	}
}

func TestClientSendAcked(t *testing.T) {
	relay := newMockRelay(t)

	client := NewClient(testClientConfig(relay.url()), nil)
	defer client.Close()

	ch, err := client.OpenChannel(context.Background(), "reactions_T1", reactions.ChannelConfig{
		RequireAck: true,
	})
	if err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	var sc statusCollector
	ch.Subscribe(sc.record)
	waitStatus(t, sc.all, reactions.StatusSubscribed)

	if err := ch.Send(context.Background(), "reaction", map[string]string{"type": "clap"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	relay.mu.Lock()
	defer relay.mu.Unlock()
	if len(relay.sends) != 1 {
		t.Fatalf("relay saw %d broadcasts, want 1", len(relay.sends))
	}

	var env broadcastEnvelope
	if err := json.Unmarshal(relay.sends[0].Payload, &env); err != nil {
		t.Fatalf("unmarshal broadcast: %v", err)
	}
	if env.Type != "broadcast" || env.Event != "reaction" {
		t.Errorf("envelope = %+v, want type broadcast event reaction", env)
	}
}

func TestClientSocketLossNotifiesChannels(t *testing.T) {
	relay := newMockRelay(t)

	client := NewClient(testClientConfig(relay.url()), nil)
	defer client.Close()

	ch, err := client.OpenChannel(context.Background(), "reactions_T1", reactions.ChannelConfig{})
	if err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	var sc statusCollector
	ch.Subscribe(sc.record)
	waitStatus(t, sc.all, reactions.StatusSubscribed)

	relay.dropConnections()

	waitStatus(t, sc.all, reactions.StatusClosed)

	if client.Connected() {
		t.Error("client still reports connected after socket loss")
	}
}

func TestClientCloseIdempotent(t *testing.T) {
	relay := newMockRelay(t)

	client := NewClient(testClientConfig(relay.url()), nil)

	if _, err := client.OpenChannel(context.Background(), "reactions_T1", reactions.ChannelConfig{}); err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := client.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	if _, err := client.OpenChannel(context.Background(), "reactions_T2", reactions.ChannelConfig{}); err != ErrAlreadyClosed {
		t.Errorf("OpenChannel after Close = %v, want ErrAlreadyClosed", err)
	}
}

func TestClientChannelCloseLeaves(t *testing.T) {
	relay := newMockRelay(t)

	client := NewClient(testClientConfig(relay.url()), nil)
	defer client.Close()

	ch, err := client.OpenChannel(context.Background(), "reactions_T1", reactions.ChannelConfig{})
	if err != nil {
		t.Fatalf("OpenChannel failed: %v", err)
	}

	var sc statusCollector
	ch.Subscribe(sc.record)
	waitStatus(t, sc.all, reactions.StatusSubscribed)

	if err := ch.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := ch.Close(); err != nil {
		t.Fatalf("second Close failed: %v", err)
	}

	waitStatus(t, sc.all, reactions.StatusClosed)

	if err := ch.Send(context.Background(), "reaction", nil); err != ErrChannelClosed {
		t.Errorf("Send after Close = %v, want ErrChannelClosed", err)
	}
}
