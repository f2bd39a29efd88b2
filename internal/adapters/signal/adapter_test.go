package signal_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/calldeck/calldeck/internal/adapters/signal"
	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// fakeSwitchboard is the server side of one /ws/signal connection.
type fakeSwitchboard struct {
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conn     *websocket.Conn
	received []core.Envelope
	connCh   chan struct{}
	recvCh   chan core.Envelope
}

func newFakeSwitchboard() *fakeSwitchboard {
	return &fakeSwitchboard{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		connCh:   make(chan struct{}, 1),
		recvCh:   make(chan core.Envelope, 16),
	}
}

func (f *fakeSwitchboard) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ws/signal", r.URL.Path)
		require.NotEmpty(t, r.URL.Query().Get("username"))

		conn, err := f.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.conn = conn
		f.mu.Unlock()
		f.connCh <- struct{}{}

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := core.DecodeEnvelope(data)
			if err != nil {
				continue
			}
			f.mu.Lock()
			f.received = append(f.received, env)
			f.mu.Unlock()
			f.recvCh <- env
		}
	}
}

func (f *fakeSwitchboard) push(t *testing.T, env core.Envelope) {
	t.Helper()
	frame, err := env.Encode()
	require.NoError(t, err)
	f.mu.Lock()
	conn := f.conn
	f.mu.Unlock()
	require.NotNil(t, conn)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame))
}

type eventSink struct {
	mu     sync.Mutex
	events []core.AdapterEvent
	ch     chan core.AdapterEvent
}

func newEventSink() *eventSink {
	return &eventSink{ch: make(chan core.AdapterEvent, 32)}
}

func (s *eventSink) record(ev core.AdapterEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
	s.ch <- ev
}

func (s *eventSink) next(t *testing.T, want core.EventType) core.AdapterEvent {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-s.ch:
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("no %s event", want)
		}
	}
}

func startAdapter(t *testing.T) (*signal.Adapter, *fakeSwitchboard, *eventSink) {
	t.Helper()
	sb := newFakeSwitchboard()
	srv := httptest.NewServer(sb.handler(t))
	t.Cleanup(srv.Close)

	a := signal.New("ws"+strings.TrimPrefix(srv.URL, "http"), "alice")
	sink := newEventSink()
	a.OnEvent(sink.record)

	require.NoError(t, a.Start(context.Background()))
	t.Cleanup(a.Stop)

	select {
	case <-sb.connCh:
	case <-time.After(2 * time.Second):
		t.Fatal("adapter never connected")
	}
	return a, sb, sink
}

func TestStartAttachRegister(t *testing.T) {
	a, sb, sink := startAdapter(t)

	sink.next(t, core.EventConnected)
	require.False(t, a.IsRegistered())

	sb.push(t, core.Envelope{Type: core.MsgAttached})
	sink.next(t, core.EventRegistered)
	require.True(t, a.IsRegistered())

	a.Stop()
	sink.next(t, core.EventDisconnected)
	require.False(t, a.IsRegistered())
}

func TestStartDialFailure(t *testing.T) {
	a := signal.New("ws://127.0.0.1:1", "alice")
	sink := newEventSink()
	a.OnEvent(sink.record)

	err := a.Start(context.Background())
	require.Error(t, err)
	sink.next(t, core.EventRegistrationFailed)
}

func TestPlaceCallRequiresRegistration(t *testing.T) {
	a, _, _ := startAdapter(t)
	_, err := a.PlaceCall("bob", core.MediaOptions{Audio: true})
	require.ErrorIs(t, err, domain.ErrNotRegistered)
}

func TestIncomingInviteSurfacesSession(t *testing.T) {
	_, sb, sink := startAdapter(t)
	sb.push(t, core.Envelope{Type: core.MsgAttached})
	sink.next(t, core.EventRegistered)

	sb.push(t, core.Envelope{Type: core.MsgInvite, From: "bob", CallID: "call-1", SDP: "offer"})
	ev := sink.next(t, core.EventNewSession)
	require.NotNil(t, ev.Session)
	require.Equal(t, "call-1", ev.Session.ID())
	require.Equal(t, domain.DirectionIncoming, ev.Session.Direction())
	require.Equal(t, "bob", ev.Session.PeerIdentity())
	// No media until the session is answered.
	require.Nil(t, ev.Session.RemoteAudio())
}

func TestRemoteByeEndsSession(t *testing.T) {
	_, sb, sink := startAdapter(t)
	sb.push(t, core.Envelope{Type: core.MsgAttached})
	sink.next(t, core.EventRegistered)

	sb.push(t, core.Envelope{Type: core.MsgInvite, From: "bob", CallID: "call-1", SDP: "offer"})
	newSess := sink.next(t, core.EventNewSession)

	sb.push(t, core.Envelope{Type: core.MsgBye, CallID: "call-1"})
	ended := sink.next(t, core.EventEnded)
	require.Equal(t, newSess.Session, ended.Session)
}

func TestRemoteRejectFailsPendingCall(t *testing.T) {
	_, sb, sink := startAdapter(t)
	sb.push(t, core.Envelope{Type: core.MsgAttached})
	sink.next(t, core.EventRegistered)

	sb.push(t, core.Envelope{Type: core.MsgInvite, From: "bob", CallID: "call-2", SDP: "offer"})
	sink.next(t, core.EventNewSession)

	sb.push(t, core.Envelope{Type: core.MsgRejected, CallID: "call-2"})
	ev := sink.next(t, core.EventFailed)
	require.Equal(t, "rejected", ev.Cause)
}

func TestRejectingUnansweredIncomingSendsReject(t *testing.T) {
	_, sb, sink := startAdapter(t)
	sb.push(t, core.Envelope{Type: core.MsgAttached})
	sink.next(t, core.EventRegistered)

	sb.push(t, core.Envelope{Type: core.MsgInvite, From: "bob", CallID: "call-3", SDP: "offer"})
	ev := sink.next(t, core.EventNewSession)

	require.NoError(t, ev.Session.Terminate())
	sink.next(t, core.EventEnded)

	select {
	case env := <-sb.recvCh:
		require.Equal(t, core.MsgReject, env.Type)
		require.Equal(t, "call-3", env.CallID)
	case <-time.After(2 * time.Second):
		t.Fatal("no reject reached the switchboard")
	}
}
