package rtc

import (
	"context"
	"sync"

	"github.com/dkeye/ReviewHub/internal/core"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// DataChannelLabel is the only client data channel the relay listens on.
const DataChannelLabel = "relay"

// maxBufferedAmount is how many unsent bytes a data channel may hold before
// TrySend reports back-pressure.
const maxBufferedAmount = 1 << 20

// WebRTCConnection is a peer connection whose "relay" data channel carries
// relay frames. Once the channel is open it satisfies core.SignalConnection.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	sid    core.ConnID
	cancel context.CancelFunc

	onICE     func(webrtc.ICECandidateInit)
	onOpen    func()
	onMessage func([]byte)
	onClosed  func()

	mu        sync.RWMutex
	dc        *webrtc.DataChannel
	closeOnce sync.Once
}

func DefaultICEServers() []string {
	return []string{"stun:stun.l.google.com:19302"}
}

func WebRTCConfig(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		iceServers = DefaultICEServers()
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: iceServers,
			},
		},
	}
}

func NewWebRTCConnection(cfg webrtc.Configuration, sid core.ConnID) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	return &WebRTCConnection{pc: pc, sid: sid}, nil
}

// Start wires the peer connection callbacks. Set the On* hooks before calling it.
func (c *WebRTCConnection) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	c.pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("ice_state", s.String()).Msg("ICE state")
	})

	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Str("peer_connection_state", s.String()).Msg("Peer state")
		if s == webrtc.PeerConnectionStateFailed ||
			s == webrtc.PeerConnectionStateClosed {
			c.detach(nil)
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand != nil && c.onICE != nil {
			c.onICE(cand.ToJSON())
		}
	})

	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != DataChannelLabel {
			log.Warn().Str("module", "webrtc").Str("sid", string(c.sid)).Str("label", dc.Label()).Msg("ignoring data channel")
			return
		}
		dc.OnOpen(func() {
			c.mu.Lock()
			c.dc = dc
			c.mu.Unlock()
			log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("data channel open")
			if c.onOpen != nil {
				c.onOpen()
			}
		})
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			if c.onMessage != nil {
				c.onMessage(msg.Data)
			}
		})
		dc.OnClose(func() {
			log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("data channel closed")
			c.detach(dc)
		})
	})

	return nil
}

// detach forgets the data channel (any channel when dc is nil) and reports it.
func (c *WebRTCConnection) detach(dc *webrtc.DataChannel) {
	c.mu.Lock()
	if dc == nil || c.dc == dc {
		c.dc = nil
	}
	c.mu.Unlock()
	if c.onClosed != nil {
		c.onClosed()
	}
}

func (c *WebRTCConnection) ApplyOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return nil, err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}

	gatherComplete := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	<-gatherComplete

	return c.pc.LocalDescription(), nil
}

// TrySend writes one text frame on the open data channel without blocking.
func (c *WebRTCConnection) TrySend(f core.Frame) error {
	c.mu.RLock()
	dc := c.dc
	c.mu.RUnlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return core.ErrConnClosed
	}
	if dc.BufferedAmount() > maxBufferedAmount {
		return core.ErrBackpressure
	}
	return dc.SendText(string(f))
}

func (c *WebRTCConnection) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if err := c.pc.Close(); err != nil {
			log.Error().Err(err).Str("module", "webrtc").Str("sid", string(c.sid)).Msg("close error")
		} else {
			log.Info().Str("module", "webrtc").Str("sid", string(c.sid)).Msg("closed")
		}
		c.detach(nil)
	})
}

func (c *WebRTCConnection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

func (c *WebRTCConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) { c.onICE = fn }

// OnOpen fires once the relay data channel is usable.
func (c *WebRTCConnection) OnOpen(fn func()) { c.onOpen = fn }

func (c *WebRTCConnection) OnMessage(fn func([]byte)) { c.onMessage = fn }

// OnClosed fires when the data channel or the whole peer connection goes away.
func (c *WebRTCConnection) OnClosed(fn func()) { c.onClosed = fn }
