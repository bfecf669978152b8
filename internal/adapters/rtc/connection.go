// Package rtc adapts pion/webrtc to the voice mesh primitives.
package rtc

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicemesh/internal/core"
)

var ErrNoICEServers = errors.New("no ICE servers configured")

// API builds peer connections that share one media engine and ICE config.
type API struct {
	api *webrtc.API
	cfg webrtc.Configuration
}

// NewAPI registers the default codecs and interceptors. At least one ICE
// server is required.
func NewAPI(servers []webrtc.ICEServer) (*API, error) {
	if len(servers) == 0 {
		return nil, ErrNoICEServers
	}
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}
	return &API{
		api: webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(ir)),
		cfg: webrtc.Configuration{ICEServers: servers},
	}, nil
}

// NewConnection satisfies core.PeerConnectionFactory.
func (a *API) NewConnection(remote string) (core.PeerConnection, error) {
	pc, err := a.api.NewPeerConnection(a.cfg)
	if err != nil {
		return nil, err
	}
	return newConnection(pc, remote), nil
}

// Connection wraps one *webrtc.PeerConnection. Local candidates are
// trickled through OnICECandidate as they are gathered.
type Connection struct {
	pc     *webrtc.PeerConnection
	remote string
	logger zerolog.Logger

	mu       sync.Mutex
	onICE    func(webrtc.ICECandidateInit)
	onStream func(core.RemoteStream)
	onState  func(webrtc.PeerConnectionState)
}

var _ core.PeerConnection = (*Connection)(nil)

func newConnection(pc *webrtc.PeerConnection, remote string) *Connection {
	c := &Connection{
		pc:     pc,
		remote: remote,
		logger: log.With().Str("module", "webrtc").Str("peer", remote).Logger(),
	}

	pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			c.logger.Debug().Msg("ICE gathering complete")
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(cand.ToJSON())
		}
	})

	pc.OnICEConnectionStateChange(func(s webrtc.ICEConnectionState) {
		c.logger.Info().Str("ice_state", s.String()).Msg("ICE state")
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		c.logger.Info().Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(s)
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.logger.Info().
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		c.mu.Lock()
		fn := c.onStream
		c.mu.Unlock()
		if fn != nil {
			fn(core.RemoteStream{ID: track.StreamID(), Track: track})
		}
	})

	return c
}

func (c *Connection) CreateOffer() (webrtc.SessionDescription, error) {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return offer, nil
}

func (c *Connection) CreateAnswer() (webrtc.SessionDescription, error) {
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return answer, nil
}

func (c *Connection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *Connection) AddICECandidate(ci webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(ci)
}

// AddLocalTrack attaches track and drains RTCP for its sender so the
// interceptors keep running.
func (c *Connection) AddLocalTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *Connection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *Connection) OnRemoteStream(fn func(core.RemoteStream)) {
	c.mu.Lock()
	c.onStream = fn
	c.mu.Unlock()
}

func (c *Connection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

func (c *Connection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *Connection) Close() error {
	if err := c.pc.Close(); err != nil {
		c.logger.Error().Err(err).Msg("close error")
		return err
	}
	c.logger.Info().Msg("closed")
	return nil
}
