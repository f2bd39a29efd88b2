package app

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// fakeConn records every frame routed to one console.
type fakeConn struct {
	frames []core.Envelope
	closed bool
}

func (f *fakeConn) TrySend(frame core.Frame) error {
	env, err := core.DecodeEnvelope(frame)
	if err != nil {
		return err
	}
	f.frames = append(f.frames, env)
	return nil
}

func (f *fakeConn) Close() { f.closed = true }

func (f *fakeConn) last(t *testing.T) core.Envelope {
	t.Helper()
	require.NotEmpty(t, f.frames)
	return f.frames[len(f.frames)-1]
}

func (f *fakeConn) byType(msgType string) (core.Envelope, bool) {
	for _, env := range f.frames {
		if env.Type == msgType {
			return env, true
		}
	}
	return core.Envelope{}, false
}

func attachPair(t *testing.T) (*Switchboard, *StepLog, *fakeConn, *fakeConn) {
	t.Helper()
	steps := NewStepLog()
	sb := NewSwitchboard(steps)
	caller, callee := &fakeConn{}, &fakeConn{}
	sb.Attach("alice", caller)
	sb.Attach("bob", callee)
	return sb, steps, caller, callee
}

func stepNames(steps *StepLog) []string {
	var out []string
	for _, e := range steps.Snapshot() {
		out = append(out, e.Step)
	}
	return out
}

func TestSwitchboardAttachConfirms(t *testing.T) {
	steps := NewStepLog()
	sb := NewSwitchboard(steps)
	conn := &fakeConn{}

	sb.Attach("alice", conn)

	require.Equal(t, core.MsgAttached, conn.last(t).Type)
	require.Contains(t, stepNames(steps), "SIGNAL ATTACHED")
}

func TestSwitchboardReattachReplacesAndClosesOld(t *testing.T) {
	steps := NewStepLog()
	sb := NewSwitchboard(steps)
	old, fresh := &fakeConn{}, &fakeConn{}

	sb.Attach("alice", old)
	sb.Attach("alice", fresh)

	require.True(t, old.closed)
	require.Equal(t, core.MsgAttached, fresh.last(t).Type)

	// A late detach of the replaced connection must not evict the
	// fresh one.
	sb.Detach("alice", old)
	sb.Attach("bob", &fakeConn{})
	sb.routeInvite("bob", core.Envelope{To: "alice"})
	_, got := fresh.byType(core.MsgInvite)
	require.True(t, got)
}

func TestSwitchboardInviteRingsBothLegs(t *testing.T) {
	sb, steps, caller, callee := attachPair(t)

	sb.Route("alice", core.Envelope{Type: core.MsgInvite, To: "bob", SDP: "offer-sdp"})

	invite, ok := callee.byType(core.MsgInvite)
	require.True(t, ok)
	require.Equal(t, "alice", invite.From)
	require.Equal(t, "offer-sdp", invite.SDP)
	require.NotEmpty(t, invite.CallID)

	ringing, ok := caller.byType(core.MsgRinging)
	require.True(t, ok)
	require.Equal(t, invite.CallID, ringing.CallID)

	names := stepNames(steps)
	require.Contains(t, names, "CALL INVITE")
	require.Contains(t, names, "CALL RINGING")
}

func TestSwitchboardInviteToOfflinePeerFails(t *testing.T) {
	steps := NewStepLog()
	sb := NewSwitchboard(steps)
	caller := &fakeConn{}
	sb.Attach("alice", caller)

	sb.Route("alice", core.Envelope{Type: core.MsgInvite, To: "bob"})

	errEnv, ok := caller.byType(core.MsgError)
	require.True(t, ok)
	require.Equal(t, domain.ErrPeerUnavailable.Error(), errEnv.Cause)
	require.Contains(t, stepNames(steps), "CALL FAILED")
}

func TestSwitchboardFullCallFlow(t *testing.T) {
	sb, steps, caller, callee := attachPair(t)

	sb.Route("alice", core.Envelope{Type: core.MsgInvite, To: "bob", SDP: "offer"})
	invite, _ := callee.byType(core.MsgInvite)

	sb.Route("bob", core.Envelope{Type: core.MsgAccept, CallID: invite.CallID, SDP: "answer"})
	accepted, ok := caller.byType(core.MsgAccepted)
	require.True(t, ok)
	require.Equal(t, "answer", accepted.SDP)

	sb.Route("alice", core.Envelope{Type: core.MsgCandidate, CallID: invite.CallID, Candidate: []byte(`{"candidate":"c"}`)})
	cand, ok := callee.byType(core.MsgCandidate)
	require.True(t, ok)
	require.JSONEq(t, `{"candidate":"c"}`, string(cand.Candidate))

	sb.Route("alice", core.Envelope{Type: core.MsgBye, CallID: invite.CallID})
	bye, ok := callee.byType(core.MsgBye)
	require.True(t, ok)
	require.Equal(t, invite.CallID, bye.CallID)

	names := stepNames(steps)
	require.Contains(t, names, "CALL ACCEPTED (200 OK)")
	require.Contains(t, names, "CALL ENDED (BYE)")

	// The call slot is gone; a second bye routes nowhere.
	before := len(caller.frames)
	sb.Route("bob", core.Envelope{Type: core.MsgBye, CallID: invite.CallID})
	require.Len(t, caller.frames, before)
}

func TestSwitchboardAcceptFromWrongLegRejected(t *testing.T) {
	sb, _, caller, callee := attachPair(t)

	sb.Route("alice", core.Envelope{Type: core.MsgInvite, To: "bob"})
	invite, _ := callee.byType(core.MsgInvite)

	// The caller cannot accept its own invite.
	sb.Route("alice", core.Envelope{Type: core.MsgAccept, CallID: invite.CallID})
	errEnv, ok := caller.byType(core.MsgError)
	require.True(t, ok)
	require.Equal(t, "no such call", errEnv.Cause)
}

func TestSwitchboardRejectNotifiesCaller(t *testing.T) {
	sb, steps, caller, callee := attachPair(t)

	sb.Route("alice", core.Envelope{Type: core.MsgInvite, To: "bob"})
	invite, _ := callee.byType(core.MsgInvite)

	sb.Route("bob", core.Envelope{Type: core.MsgReject, CallID: invite.CallID})
	rejected, ok := caller.byType(core.MsgRejected)
	require.True(t, ok)
	require.Equal(t, "bob", rejected.From)
	require.Contains(t, stepNames(steps), "CALL REJECTED")
}

func TestSwitchboardDetachSendsByeToPeer(t *testing.T) {
	sb, steps, caller, callee := attachPair(t)

	sb.Route("alice", core.Envelope{Type: core.MsgInvite, To: "bob"})
	invite, _ := callee.byType(core.MsgInvite)

	sb.Detach("bob", callee)

	bye, ok := caller.byType(core.MsgBye)
	require.True(t, ok)
	require.Equal(t, invite.CallID, bye.CallID)
	names := stepNames(steps)
	require.Contains(t, names, "SIGNAL DETACHED")
	require.Contains(t, names, "CALL ENDED (BYE)")
}

func TestSwitchboardNotifyCallRequest(t *testing.T) {
	sb, steps, _, callee := attachPair(t)

	require.NoError(t, sb.NotifyCallRequest("alice", "bob"))
	req, ok := callee.byType(core.MsgCallRequest)
	require.True(t, ok)
	require.Equal(t, "alice", req.From)
	require.Contains(t, stepNames(steps), "CALL INITIATE REQUEST")

	err := sb.NotifyCallRequest("alice", "carol")
	require.ErrorIs(t, err, domain.ErrPeerUnavailable)
}
