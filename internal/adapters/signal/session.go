package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/calldeck/calldeck/internal/adapters/rtc"
	"github.com/calldeck/calldeck/internal/core"
	"github.com/calldeck/calldeck/internal/domain"
)

// callSession is one adapter-level call leg. For outgoing calls the
// peer connection exists before the invite; for incoming it is created
// on Answer.
type callSession struct {
	adapter   *Adapter
	direction domain.CallDirection
	peer      string

	mu          sync.Mutex
	id          string
	remoteOffer string
	pc          *rtc.PeerConnection
	audio       *remoteAudio
	answered    bool
}

func newCallSession(a *Adapter, dir domain.CallDirection, peer string) *callSession {
	return &callSession{
		adapter:   a,
		direction: dir,
		peer:      peer,
		id:        uuid.NewString(), // replaced by the switchboard call_id once assigned
	}
}

func (s *callSession) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

func (s *callSession) Direction() domain.CallDirection { return s.direction }
func (s *callSession) PeerIdentity() string            { return s.peer }

func (s *callSession) RemoteAudio() core.MediaSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.audio == nil {
		return nil
	}
	return s.audio
}

// openMedia builds the peer connection and wires the inbound track into
// the latest-payload buffer.
func (s *callSession) openMedia() error {
	pc, err := rtc.New(s.adapter.rtcCfg, s.id)
	if err != nil {
		return err
	}
	audio := &remoteAudio{}
	pc.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go audio.consume(ctx, track)
	})
	if err := pc.Start(context.Background()); err != nil {
		pc.Close()
		return err
	}
	s.mu.Lock()
	s.pc = pc
	s.audio = audio
	s.mu.Unlock()
	return nil
}

func (s *callSession) closeMedia() {
	s.mu.Lock()
	pc := s.pc
	s.pc = nil
	s.mu.Unlock()
	if pc != nil {
		pc.Close()
	}
}

// Answer accepts an incoming leg: apply the stored remote offer, send
// the local answer back through the switchboard.
func (s *callSession) Answer(opts core.MediaOptions) error {
	if s.direction != domain.DirectionIncoming {
		return fmt.Errorf("answer: not an incoming session")
	}
	if err := s.openMedia(); err != nil {
		return fmt.Errorf("answer: %w", err)
	}
	s.mu.Lock()
	offer := s.remoteOffer
	s.mu.Unlock()

	answer, err := s.pc.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  offer,
	})
	if err != nil {
		s.closeMedia()
		return fmt.Errorf("answer: %w", err)
	}

	if err := s.adapter.sendEnvelope(core.Envelope{
		Type:   core.MsgAccept,
		CallID: s.ID(),
		SDP:    answer.SDP,
	}); err != nil {
		s.closeMedia()
		return err
	}

	s.mu.Lock()
	s.answered = true
	s.mu.Unlock()

	// Media is negotiated on this leg; confirm asynchronously so the
	// controller observes accept -> confirmed in order.
	go s.adapter.emit(core.AdapterEvent{Type: core.EventConfirmed, Session: s})
	return nil
}

// Terminate rejects an unanswered incoming leg, otherwise hangs up.
// The adapter raises the matching ended event, mirroring a remote bye.
func (s *callSession) Terminate() error {
	s.mu.Lock()
	answered := s.answered
	s.mu.Unlock()

	msgType := core.MsgBye
	if s.direction == domain.DirectionIncoming && !answered {
		msgType = core.MsgReject
	}
	err := s.adapter.sendEnvelope(core.Envelope{Type: msgType, CallID: s.ID()})
	s.adapter.finishSession(s, core.EventEnded, "")
	return err
}

func (s *callSession) addCandidate(raw json.RawMessage) {
	s.mu.Lock()
	pc := s.pc
	s.mu.Unlock()
	if pc == nil || len(raw) == 0 {
		return
	}
	var ci webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &ci); err != nil {
		log.Error().Err(err).Str("module", "signal.session").Msg("bad candidate")
		return
	}
	if err := pc.AddICECandidate(ci); err != nil {
		log.Error().Err(err).Str("module", "signal.session").Msg("add ice candidate")
	}
}

// remoteAudio keeps only the newest inbound audio payload; readers poll
// at their own frame rate.
type remoteAudio struct {
	mu      sync.RWMutex
	payload []byte
	ok      bool
}

func (r *remoteAudio) consume(ctx context.Context, track *webrtc.TrackRemote) {
	var pkt *rtp.Packet
	var err error
	for ctx.Err() == nil {
		pkt, _, err = track.ReadRTP()
		if err != nil {
			return
		}
		r.store(pkt.Payload)
	}
}

func (r *remoteAudio) store(payload []byte) {
	buf := make([]byte, len(payload))
	copy(buf, payload)
	r.mu.Lock()
	r.payload = buf
	r.ok = true
	r.mu.Unlock()
}

func (r *remoteAudio) LatestPayload() ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.payload, r.ok
}
