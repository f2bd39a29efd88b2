package domain

import "time"

// LogEntry is one immutable operational event. Seq is assigned by the
// step log and is strictly increasing, also across clears.
type LogEntry struct {
	Seq       int64             `json:"seq"`
	Timestamp time.Time         `json:"timestamp"`
	Step      string            `json:"step"`
	Details   map[string]string `json:"details"`
}

// ConnectionState describes the push channel.
type ConnectionState string

const (
	ChannelDisconnected ConnectionState = "disconnected"
	ChannelConnecting   ConnectionState = "connecting"
	ChannelConnected    ConnectionState = "connected"
)
