// Package push is the console's client for the /ws/logs channel. One
// Channel is one connection; reconnect policy belongs to the log
// stream, not here.
package push

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// Message is one decoded server push. Snapshot is non-nil only for
// all_logs messages; anything else is a refresh trigger.
type Message struct {
	Type string
	Logs []domain.LogEntry
}

func (m Message) IsSnapshot() bool { return m.Type == core.MsgAllLogs }

type Channel struct {
	conn *websocket.Conn
}

// Dial connects and immediately requests a full snapshot.
func Dial(ctx context.Context, url string) (*Channel, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	ch := &Channel{conn: conn}
	if err := ch.RequestSnapshot(); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

// RequestSnapshot asks the server for a fresh all_logs message.
func (c *Channel) RequestSnapshot() error {
	return c.conn.WriteMessage(websocket.TextMessage, []byte(core.LogRequestToken))
}

// Receive blocks until the next push or a channel error.
func (c *Channel) Receive() (Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	env, err := core.DecodeEnvelope(data)
	if err != nil {
		// Malformed pushes still mean "something changed".
		return Message{Type: core.MsgLogUpdate}, nil
	}
	return Message{Type: env.Type, Logs: env.Logs}, nil
}

func (c *Channel) Close() {
	_ = c.conn.Close()
}
