package core

import (
	"encoding/json"

	"github.com/calldeck/calldeck/internal/domain"
)

// Signal message types routed by the switchboard.
const (
	MsgAttached    = "attached"
	MsgInvite      = "invite"
	MsgRinging     = "ringing"
	MsgAccept      = "accept"
	MsgAccepted    = "accepted"
	MsgReject      = "reject"
	MsgRejected    = "rejected"
	MsgBye         = "bye"
	MsgCandidate   = "candidate"
	MsgError       = "error"
	MsgCallRequest = "call_request"
)

// Log channel message types.
const (
	MsgAllLogs   = "all_logs"
	MsgLogUpdate = "log_update"
	// LogRequestToken is the literal the client sends on open (and any
	// time it wants a fresh full snapshot).
	LogRequestToken = "get_logs"
)

// Envelope is the wire shape on both websocket channels. Fields are
// populated per message type; unknown fields are ignored on decode.
type Envelope struct {
	Type      string            `json:"type"`
	From      string            `json:"from,omitempty"`
	To        string            `json:"to,omitempty"`
	CallID    string            `json:"call_id,omitempty"`
	SDP       string            `json:"sdp,omitempty"`
	Candidate json.RawMessage   `json:"candidate,omitempty"`
	Cause     string            `json:"cause,omitempty"`
	Logs      []domain.LogEntry `json:"logs,omitempty"`
}

func (e Envelope) Encode() (Frame, error) {
	return json.Marshal(e)
}

func DecodeEnvelope(data Frame) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}
