package signal

import (
	"context"

	"github.com/dkeye/ReviewHub/internal/adapters/rtc"
	"github.com/dkeye/ReviewHub/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) sendCandidate(cl *client, ci webrtc.ICECandidateInit) {
	ctl.sendJSON(cl.conn, protocol.CandidateOut{
		Type:          protocol.TypeCandidate,
		Candidate:     ci.Candidate,
		SDPMid:        ci.SDPMid,
		SDPMLineIndex: ci.SDPMLineIndex,
	})
}

// handleOffer answers a client offer. The resulting peer connection only
// carries the "relay" data channel; frames on it are dispatched like socket frames.
func (ctl *SignalWSController) handleOffer(ctx context.Context, cl *client, p *protocol.Offer) {
	sid := cl.sid
	wc, err := rtc.NewWebRTCConnection(rtc.WebRTCConfig(ctl.opts.ICEServers), sid)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc new pc")
		ctl.replyError(sid, err)
		return
	}

	wc.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		ctl.sendCandidate(cl, ci)
	})
	wc.OnOpen(func() { ctl.Orch.AttachMedia(sid, wc) })
	wc.OnMessage(func(data []byte) { ctl.dispatch(ctx, cl, data, true) })
	wc.OnClosed(func() { ctl.Orch.DetachMedia(sid, wc) })

	if err = wc.Start(ctx); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("webrtc start")
		wc.Close()
		return
	}
	cl.setPeer(wc)

	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  p.SDP,
	}
	answer, err := wc.ApplyOfferAndCreateAnswer(offer)
	if err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("webrtc apply offer")
		ctl.replyError(cl.sid, protocol.BadPayload("offer rejected"))
		return
	}

	ctl.sendJSON(cl.conn, protocol.NewAnswer(answer.SDP))
}

func (ctl *SignalWSController) handleCandidate(cl *client, p *protocol.Candidate) {
	peer := cl.getPeer()
	if peer == nil {
		log.Warn().Str("module", "signal").Str("sid", string(cl.sid)).Msg("candidate: no peer connection")
		ctl.replyError(cl.sid, protocol.BadPayload("send an offer first"))
		return
	}
	cand := webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}
	if err := peer.AddICECandidate(cand); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("add ice candidate")
	}
}
